package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storefront-systems/shop-service-go/internal/cart"
	"github.com/storefront-systems/shop-service-go/internal/catalog"
	"github.com/storefront-systems/shop-service-go/internal/domain"
)

// CreatedPublisher is implemented by the events publisher. Publishing is best
// effort: the order is already durable when it runs.
type CreatedPublisher interface {
	PublishOrderCreated(ctx context.Context, o *Order) error
}

type Service struct {
	pool     DBPool
	orders   Repository
	carts    cart.Repository
	products catalog.Repository
	pub      CreatedPublisher
	logger   zerolog.Logger
}

func NewService(pool DBPool, orders Repository, carts cart.Repository, products catalog.Repository, pub CreatedPublisher, logger zerolog.Logger) *Service {
	return &Service{
		pool:     pool,
		orders:   orders,
		carts:    carts,
		products: products,
		pub:      pub,
		logger:   logger.With().Str("component", "order-service").Logger(),
	}
}

// PlaceOrder commits the user's cart into an immutable order. Stock
// reservation, the order insert, and the cart clear all happen in one
// transaction: a reservation failure on the third line item rolls back the
// first two.
func (s *Service) PlaceOrder(ctx context.Context, userID string) (*Order, error) {
	exists, err := s.orders.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NotFound("user %s not found", userID)
	}

	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil || len(c.Items) == 0 {
		return nil, domain.InvalidState("cart is empty for user %s", userID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	o := &Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		OrderStatus: StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, ci := range c.Items {
		// Price is whatever the product row says right now, not the price
		// cached on the cart item when it was added.
		_, price, err := s.products.ReserveTx(ctx, tx, ci.ProductID, ci.Quantity)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return nil, domain.Unavailable("product %s no longer available", ci.ProductID)
			}
			return nil, err
		}

		o.Items = append(o.Items, Item{
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			Price:     price,
			Amount:    price * float64(ci.Quantity),
		})
	}

	for _, it := range o.Items {
		o.TotalAmount += it.Amount
	}

	if err := s.orders.CreateTx(ctx, tx, o); err != nil {
		return nil, err
	}

	if err := s.carts.ClearTx(ctx, tx, c.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info().Str("orderId", o.ID).Str("userId", userID).
		Float64("total", o.TotalAmount).Int("items", len(o.Items)).Msg("order placed")

	if s.pub != nil {
		if err := s.pub.PublishOrderCreated(ctx, o); err != nil {
			s.logger.Warn().Err(err).Str("orderId", o.ID).Msg("publish OrderCreated")
		}
	}

	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFound("order %s not found", orderID)
	}
	return o, nil
}

func (s *Service) ListOrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	exists, err := s.orders.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.NotFound("user %s not found", userID)
	}

	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		s.logger.Debug().Str("userId", userID).Msg("no orders for user")
	}
	return orders, nil
}
