package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storefront-systems/shop-service-go/internal/domain"
)

func NewRouter(orders *OrderHandler, checkout *CheckoutHandler, payments *PaymentHandler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", healthHandler)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/users/{userId}/orders", orders.PlaceOrder)
		r.Get("/users/{userId}/orders", orders.ListByUser)
		r.Get("/orders/{orderId}", orders.GetOrder)

		r.Post("/checkout/session", checkout.CreateSession)

		r.Post("/payments/webhook", payments.Webhook)
		r.Post("/payments/reconcile", payments.ReconcileAll)
		r.Post("/payments/retry", payments.RetryFailed)
		r.Get("/payments/{intentId}/verify", payments.Verify)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "shop-service",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to response codes. Internal and gateway
// details stay out of the body.
func writeError(w http.ResponseWriter, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case domain.KindUnavailable:
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case domain.KindInvalidArgument, domain.KindInvalidState:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case domain.KindGateway:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment gateway unavailable, try again later"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
