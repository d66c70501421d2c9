package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-systems/shop-service-go/internal/reconcile"
)

type PaymentHandler struct {
	engine   *reconcile.Engine
	currency string
}

func NewPaymentHandler(engine *reconcile.Engine, currency string) *PaymentHandler {
	return &PaymentHandler{engine: engine, currency: currency}
}

type webhookRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.engine.ProcessWebhook(ctx, req.PaymentIntentID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *PaymentHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	// No per-order timeout here: the engine bounds each gateway call itself.
	sum, err := h.engine.ReconcileAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"scanned":   sum.Scanned,
		"confirmed": sum.Confirmed,
		"failed":    sum.Failed,
		"skipped":   sum.Skipped,
		"errors":    sum.Errors,
	})
}

func (h *PaymentHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	retried, err := h.engine.RetryFailedPayments(r.Context(), h.currency)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"retried": retried})
}

func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentId")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ok, err := h.engine.VerifyIntent(ctx, intentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"succeeded": ok})
}
