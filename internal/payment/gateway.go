package payment

import "context"

// Intent statuses as the gateway reports them.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresAction        = "requires_action"
	IntentCanceled              = "canceled"
)

// LineItem is one priced entry of a checkout session. UnitAmount is in minor
// currency units (cents).
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Currency    string
	Quantity    int
}

// SessionDescriptor is what the client needs to hand the user over to the
// hosted checkout page.
type SessionDescriptor struct {
	SessionID      string `json:"sessionId"`
	PublishableKey string `json:"publishableKey"`
	ClientSecret   string `json:"clientSecret"`
	URL            string `json:"paymentUrl"`
}

type IntentDescriptor struct {
	IntentID string `json:"intentId"`
	Status   string `json:"status"`
}

// Gateway abstracts the external payment provider. All methods block at most
// for the configured client timeout and wrap provider failures in a
// domain.KindGateway error.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, items []LineItem, successURL, cancelURL string, metadata map[string]string) (SessionDescriptor, error)
	GetIntentStatus(ctx context.Context, intentID string) (string, error)
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (IntentDescriptor, error)
}
