package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/storefront-systems/shop-service-go/internal/order"
)

const (
	OrderCreatedQueue   = "order.created"
	OrderConfirmedQueue = "order.confirmed"
	OrderFailedQueue    = "order.failed"
)

// Publisher emits order lifecycle events to RabbitMQ. A nil *Publisher is a
// no-op so the service can run without a broker in local setups and tests.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare queues so publish never fails due to missing infra
	for _, q := range []string{OrderCreatedQueue, OrderConfirmedQueue, OrderFailedQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare %s: %w", q, err)
		}
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.ch.Close()
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	if p == nil {
		return nil
	}

	ev := OrderCreated{
		EventType:   "OrderCreated",
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Timestamp:   time.Now().UTC(),
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderCreated: %w", err)
	}
	return p.publishJSON(ctx, OrderCreatedQueue, body)
}

func (p *Publisher) PublishOrderConfirmed(ctx context.Context, orderID, userID string) error {
	if p == nil {
		return nil
	}

	ev := OrderConfirmed{
		EventType: "OrderConfirmed",
		OrderID:   orderID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderConfirmed: %w", err)
	}
	return p.publishJSON(ctx, OrderConfirmedQueue, body)
}

func (p *Publisher) PublishOrderFailed(ctx context.Context, orderID, userID, reason string) error {
	if p == nil {
		return nil
	}

	ev := OrderFailed{
		EventType: "OrderFailed",
		OrderID:   orderID,
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderFailed: %w", err)
	}
	return p.publishJSON(ctx, OrderFailedQueue, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",         // default exchange
		routingKey, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Dial connects to RabbitMQ; empty url means events are disabled.
func Dial(url string) (*amqp.Connection, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}
