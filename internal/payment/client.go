package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/storefront-systems/shop-service-go/internal/domain"
)

// Client talks to a Stripe-style REST API: form-encoded requests, JSON
// responses, bearer auth with the secret key. A circuit breaker sits in front
// so a dead gateway fails fast instead of tying up request handlers.
type Client struct {
	baseURL        string
	secretKey      string
	publishableKey string
	http           *http.Client
	cb             *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(baseURL, secretKey, publishableKey string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		secretKey:      secretKey,
		publishableKey: publishableKey,
		http:           &http.Client{Timeout: timeout},
		cb:             gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, items []LineItem, successURL, cancelURL string, metadata map[string]string) (SessionDescriptor, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("payment_method_types[0]", "card")
	for i, it := range items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(it.Quantity))
		form.Set(prefix+"[price_data][currency]", it.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(it.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", it.Name)
		if it.Description != "" {
			form.Set(prefix+"[price_data][product_data][description]", it.Description)
		}
	}
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return SessionDescriptor{}, err
	}

	var resp struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		URL          string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return SessionDescriptor{}, domain.Gateway(err, "decode checkout session response")
	}

	return SessionDescriptor{
		SessionID:      resp.ID,
		PublishableKey: c.publishableKey,
		ClientSecret:   resp.ClientSecret,
		URL:            resp.URL,
	}, nil
}

func (c *Client) GetIntentStatus(ctx context.Context, intentID string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.Gateway(err, "decode payment intent response")
	}
	return resp.Status, nil
}

func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (IntentDescriptor, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", currency)
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form)
	if err != nil {
		return IntentDescriptor{}, err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return IntentDescriptor{}, domain.Gateway(err, "decode payment intent response")
	}
	return IntentDescriptor{IntentID: resp.ID, Status: resp.Status}, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	body, err := c.cb.Execute(func() ([]byte, error) {
		var reader io.Reader
		if form != nil {
			reader = strings.NewReader(form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s %s: %s", method, path, gatewayMessage(resp.StatusCode, data))
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.Gateway(err, "payment gateway unavailable")
		}
		return nil, domain.Gateway(err, "payment gateway request failed")
	}
	return body, nil
}

func gatewayMessage(status int, body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", status, e.Error.Message)
	}
	return fmt.Sprintf("status %d", status)
}
