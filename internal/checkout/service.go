package checkout

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/storefront-systems/shop-service-go/internal/catalog"
	"github.com/storefront-systems/shop-service-go/internal/domain"
	"github.com/storefront-systems/shop-service-go/internal/payment"
)

// ItemRequest is one requested (product, quantity) pair for an ad-hoc
// checkout session.
type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Config struct {
	SuccessURL string
	CancelURL  string
	Currency   string
}

type Service struct {
	products catalog.Repository
	gateway  payment.Gateway
	cfg      Config
	logger   zerolog.Logger
}

func NewService(products catalog.Repository, gateway payment.Gateway, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		products: products,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger.With().Str("component", "checkout").Logger(),
	}
}

// CreateSession opens a hosted checkout session for the requested items.
// The availability check here is advisory pricing only: nothing is reserved
// until an order is placed.
func (s *Service) CreateSession(ctx context.Context, items []ItemRequest) (payment.SessionDescriptor, error) {
	if len(items) == 0 {
		return payment.SessionDescriptor{}, domain.InvalidArgument("checkout items cannot be empty")
	}

	lineItems := make([]payment.LineItem, 0, len(items))
	var total float64

	for _, it := range items {
		if it.Quantity <= 0 {
			return payment.SessionDescriptor{}, domain.InvalidArgument("quantity must be positive for product %s", it.ProductID)
		}

		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return payment.SessionDescriptor{}, err
		}
		if p.Quantity < it.Quantity {
			return payment.SessionDescriptor{}, domain.Unavailable(
				"insufficient stock for product %s: available %d, requested %d", p.Name, p.Quantity, it.Quantity)
		}

		lineItems = append(lineItems, payment.LineItem{
			Name:        p.Name,
			Description: p.Category,
			UnitAmount:  MinorUnits(p.Price),
			Currency:    s.cfg.Currency,
			Quantity:    it.Quantity,
		})
		total += p.Price * float64(it.Quantity)
	}

	metadata := map[string]string{
		"orderDate":   time.Now().UTC().Format(time.RFC3339),
		"totalAmount": fmt.Sprintf("%.2f", total),
	}

	desc, err := s.gateway.CreateCheckoutSession(ctx, lineItems, s.cfg.SuccessURL, s.cfg.CancelURL, metadata)
	if err != nil {
		return payment.SessionDescriptor{}, err
	}

	s.logger.Info().Str("sessionId", desc.SessionID).Float64("total", total).
		Int("items", len(lineItems)).Msg("checkout session created")

	return desc, nil
}

// MinorUnits converts a price to minor currency units (cents).
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
