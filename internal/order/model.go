package order

import "time"

type Item struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
}

type Order struct {
	ID              string        `json:"orderId"`
	UserID          string        `json:"userId"`
	Items           []Item        `json:"items"`
	TotalAmount     float64       `json:"totalAmount"`
	OrderStatus     Status        `json:"orderStatus"`
	PaymentStatus   PaymentStatus `json:"paymentStatus,omitempty"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	PaidAt          *time.Time    `json:"paidAt,omitempty"`
}
