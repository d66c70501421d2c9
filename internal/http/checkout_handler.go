package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/storefront-systems/shop-service-go/internal/checkout"
)

type CheckoutHandler struct {
	svc *checkout.Service
}

func NewCheckoutHandler(svc *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

type createSessionRequest struct {
	Items []checkout.ItemRequest `json:"items"`
}

func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	desc, err := h.svc.CreateSession(ctx, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, desc)
}
