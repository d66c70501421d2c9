package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-systems/shop-service-go/internal/domain"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotAuth, gotContentType string
	var gotForm map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","client_secret":"cs_secret","url":"https://pay.example.com/cs_123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", "pk_test_xyz", 5*time.Second)

	desc, err := c.CreateCheckoutSession(context.Background(),
		[]LineItem{
			{Name: "Keyboard", Description: "peripherals", UnitAmount: 7999, Currency: "usd", Quantity: 2},
			{Name: "Mouse Pad", UnitAmount: 950, Currency: "usd", Quantity: 1},
		},
		"https://shop.example.com/success", "https://shop.example.com/cancel",
		map[string]string{"orderDate": "2026-08-30T00:00:00Z"},
	)
	require.NoError(t, err)

	assert.Equal(t, "cs_123", desc.SessionID)
	assert.Equal(t, "pk_test_xyz", desc.PublishableKey)
	assert.Equal(t, "cs_secret", desc.ClientSecret)
	assert.Equal(t, "https://pay.example.com/cs_123", desc.URL)

	assert.Equal(t, "Bearer sk_test_abc", gotAuth)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)

	assert.Equal(t, "payment", gotForm["mode"][0])
	assert.Equal(t, "card", gotForm["payment_method_types[0]"][0])
	assert.Equal(t, "2", gotForm["line_items[0][quantity]"][0])
	assert.Equal(t, "usd", gotForm["line_items[0][price_data][currency]"][0])
	assert.Equal(t, "7999", gotForm["line_items[0][price_data][unit_amount]"][0])
	assert.Equal(t, "Keyboard", gotForm["line_items[0][price_data][product_data][name]"][0])
	assert.Equal(t, "peripherals", gotForm["line_items[0][price_data][product_data][description]"][0])
	assert.Equal(t, "950", gotForm["line_items[1][price_data][unit_amount]"][0])
	assert.NotContains(t, gotForm, "line_items[1][price_data][product_data][description]")
	assert.Equal(t, "2026-08-30T00:00:00Z", gotForm["metadata[orderDate]"][0])
}

func TestGetIntentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", "pk_test_xyz", 5*time.Second)

	status, err := c.GetIntentStatus(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, status)
}

func TestCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "2500", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "o1", r.PostForm.Get("metadata[orderId]"))

		_, _ = w.Write([]byte(`{"id":"pi_new","status":"processing"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", "pk_test_xyz", 5*time.Second)

	intent, err := c.CreateIntent(context.Background(), 2500, "usd", map[string]string{"orderId": "o1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_new", intent.IntentID)
	assert.Equal(t, IntentProcessing, intent.Status)
}

func TestGatewayErrorMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", "pk_test_xyz", 5*time.Second)

	_, err := c.GetIntentStatus(context.Background(), "pi_declined")
	require.Error(t, err)
	assert.Equal(t, domain.KindGateway, domain.KindOf(err))
	assert.Contains(t, err.Error(), "status 402")
	assert.Contains(t, err.Error(), "Your card was declined.")
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test_abc", "pk_test_xyz", 5*time.Second)

	for i := 0; i < 6; i++ {
		_, err := c.GetIntentStatus(context.Background(), "pi_1")
		require.Error(t, err)
	}
	require.Equal(t, 6, calls)

	// breaker is open now; the request never reaches the server
	_, err := c.GetIntentStatus(context.Background(), "pi_1")
	require.Error(t, err)
	assert.Equal(t, domain.KindGateway, domain.KindOf(err))
	assert.Contains(t, err.Error(), "payment gateway unavailable")
	assert.Equal(t, 6, calls)
}
