package order

// Status is the order-level state. Orders only move forward: Pending is the
// sole non-terminal state, everything else is final until a new payment
// attempt is made explicitly.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusCancelled
}

// PaymentStatus mirrors the gateway's vocabulary. Empty means no payment
// session exists yet.
type PaymentStatus string

const (
	PaymentNone       PaymentStatus = ""
	PaymentProcessing PaymentStatus = "processing"
	PaymentSucceeded  PaymentStatus = "succeeded"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)
