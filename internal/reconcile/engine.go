package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/storefront-systems/shop-service-go/internal/catalog"
	"github.com/storefront-systems/shop-service-go/internal/domain"
	"github.com/storefront-systems/shop-service-go/internal/order"
	"github.com/storefront-systems/shop-service-go/internal/payment"
)

// Outcome is the result of applying one gateway status observation to an
// order.
type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeProcessing Outcome = "processing"
	OutcomeFailed     Outcome = "failed"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeNoop       Outcome = "noop" // order already terminal, nothing applied
	OutcomeUnknown    Outcome = "unknown"
)

// Summary reports one sweep pass. Errors counts per-order failures that were
// logged and swallowed; they never abort the pass.
type Summary struct {
	Scanned   int
	Confirmed int
	Failed    int
	Skipped   int
	Errors    int
}

// DBPool matches the *pgxpool.Pool methods the engine needs.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// StatusPublisher is implemented by the events publisher.
type StatusPublisher interface {
	PublishOrderConfirmed(ctx context.Context, orderID, userID string) error
	PublishOrderFailed(ctx context.Context, orderID, userID, reason string) error
}

// Engine aligns internal order/payment state with the gateway's authoritative
// intent status. Both drivers, the periodic sweep and the webhook handler, go
// through Apply so the transition rules live in exactly one place.
type Engine struct {
	pool           DBPool
	orders         order.Repository
	products       catalog.Repository
	gateway        payment.Gateway
	pub            StatusPublisher
	dedup          *Dedup
	metrics        *Metrics
	gatewayTimeout time.Duration
	logger         zerolog.Logger
}

func NewEngine(
	pool DBPool,
	orders order.Repository,
	products catalog.Repository,
	gateway payment.Gateway,
	pub StatusPublisher,
	dedup *Dedup,
	metrics *Metrics,
	gatewayTimeout time.Duration,
	logger zerolog.Logger,
) *Engine {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &Engine{
		pool:           pool,
		orders:         orders,
		products:       products,
		gateway:        gateway,
		pub:            pub,
		dedup:          dedup,
		metrics:        metrics,
		gatewayTimeout: gatewayTimeout,
		logger:         logger.With().Str("component", "reconcile").Logger(),
	}
}

// Apply runs the transition table for one order and one observed gateway
// status. Terminal transitions are conditional updates gated on the order
// still being Pending; when the gate does not pass the call is a no-op,
// which is what makes a sweep/webhook race safe: inventory is restored at
// most once per order.
func (e *Engine) Apply(ctx context.Context, o *order.Order, intentStatus string) (Outcome, error) {
	switch intentStatus {
	case payment.IntentSucceeded:
		return e.applySucceeded(ctx, o)

	case payment.IntentProcessing:
		applied, err := e.orders.MarkProcessing(ctx, o.ID)
		if err != nil {
			return OutcomeNoop, err
		}
		if !applied {
			return OutcomeNoop, nil
		}
		e.metrics.observeOutcome(OutcomeProcessing)
		return OutcomeProcessing, nil

	case payment.IntentRequiresPaymentMethod, payment.IntentRequiresAction:
		return e.applyTerminal(ctx, o, order.StatusFailed, order.PaymentFailed, OutcomeFailed,
			"payment "+intentStatus)

	case payment.IntentCanceled:
		return e.applyTerminal(ctx, o, order.StatusCancelled, order.PaymentCancelled, OutcomeCancelled,
			"payment cancelled")

	default:
		e.logger.Warn().Str("orderId", o.ID).Str("intentStatus", intentStatus).
			Msg("unknown payment status, no transition")
		return OutcomeUnknown, nil
	}
}

func (e *Engine) applySucceeded(ctx context.Context, o *order.Order) (Outcome, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied, err := e.orders.MarkSucceededTx(ctx, tx, o.ID)
	if err != nil {
		return OutcomeNoop, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OutcomeNoop, fmt.Errorf("commit: %w", err)
	}
	if !applied {
		return OutcomeNoop, nil
	}

	e.metrics.observeOutcome(OutcomeConfirmed)
	e.logger.Info().Str("orderId", o.ID).Msg("order confirmed")

	if e.pub != nil {
		if err := e.pub.PublishOrderConfirmed(ctx, o.ID, o.UserID); err != nil {
			e.logger.Warn().Err(err).Str("orderId", o.ID).Msg("publish OrderConfirmed")
		}
	}
	return OutcomeConfirmed, nil
}

// applyTerminal flips the order into a terminal failure state and returns the
// reserved stock to the shelf. The status flip and every restore commit in
// one transaction; the restore loop only runs if the flip applied.
func (e *Engine) applyTerminal(ctx context.Context, o *order.Order, st order.Status, ps order.PaymentStatus, out Outcome, reason string) (Outcome, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	applied, err := e.orders.MarkTerminalTx(ctx, tx, o.ID, st, ps)
	if err != nil {
		return OutcomeNoop, err
	}
	if !applied {
		// Another driver got here first; commit nothing.
		return OutcomeNoop, nil
	}

	for _, it := range o.Items {
		if err := e.products.RestoreTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return OutcomeNoop, fmt.Errorf("restore %s: %w", it.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeNoop, fmt.Errorf("commit: %w", err)
	}

	e.metrics.observeOutcome(out)
	e.logger.Info().Str("orderId", o.ID).Str("status", string(st)).
		Int("restoredItems", len(o.Items)).Msg("order closed, inventory restored")

	if e.pub != nil {
		if err := e.pub.PublishOrderFailed(ctx, o.ID, o.UserID, reason); err != nil {
			e.logger.Warn().Err(err).Str("orderId", o.ID).Msg("publish OrderFailed")
		}
	}
	return out, nil
}

// ReconcileAll is the sweep driver: it polls the gateway for every open order
// and applies the transition table. A failure for one order is counted and
// logged, never propagated, so a flaky gateway cannot starve the rest of the
// batch. The context is checked between orders so shutdown is prompt.
func (e *Engine) ReconcileAll(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	open, err := e.orders.ListOpen(ctx)
	if err != nil {
		return sum, fmt.Errorf("list open orders: %w", err)
	}
	sum.Scanned = len(open)

	e.logger.Info().Int("orders", len(open)).Msg("reconciliation pass started")

	for i := range open {
		if err := ctx.Err(); err != nil {
			e.logger.Info().Msg("reconciliation pass interrupted by shutdown")
			return sum, nil
		}

		o := &open[i]
		if o.PaymentIntentID == "" {
			e.logger.Warn().Str("orderId", o.ID).Msg("order has no payment intent yet, skipping")
			sum.Skipped++
			continue
		}

		outcome, err := e.reconcileOne(ctx, o)
		if err != nil {
			e.logger.Error().Err(err).Str("orderId", o.ID).Msg("reconcile order")
			e.metrics.observeSweepError()
			sum.Errors++
			continue
		}

		switch outcome {
		case OutcomeConfirmed:
			sum.Confirmed++
		case OutcomeFailed, OutcomeCancelled:
			sum.Failed++
		case OutcomeNoop, OutcomeUnknown:
			sum.Skipped++
		}
	}

	e.metrics.observeSweepDuration(time.Since(start).Seconds())
	e.logger.Info().Int("confirmed", sum.Confirmed).Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).Int("errors", sum.Errors).
		Msg("reconciliation pass completed")

	return sum, nil
}

func (e *Engine) reconcileOne(ctx context.Context, o *order.Order) (Outcome, error) {
	gwCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	status, err := e.gateway.GetIntentStatus(gwCtx, o.PaymentIntentID)
	if err != nil {
		return OutcomeNoop, err
	}

	return e.Apply(ctx, o, status)
}

// VerifyIntent reports whether a single intent has succeeded. Gateway errors
// propagate: this is a direct user-facing query.
func (e *Engine) VerifyIntent(ctx context.Context, intentID string) (bool, error) {
	if intentID == "" {
		return false, domain.InvalidArgument("payment intent id cannot be empty")
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	status, err := e.gateway.GetIntentStatus(gwCtx, intentID)
	if err != nil {
		return false, err
	}

	e.logger.Info().Str("intentId", intentID).Str("status", status).Msg("intent verified")
	return status == payment.IntentSucceeded, nil
}

// ProcessWebhook is the event driver: the gateway told us something changed
// for this intent, so look the order up and run the same table the sweep
// runs. Unknown intents are logged and dropped; the order may not exist yet
// and the gateway re-delivers.
func (e *Engine) ProcessWebhook(ctx context.Context, intentID string) error {
	if intentID == "" {
		return domain.InvalidArgument("payment intent id cannot be empty")
	}

	if e.dedup.Seen(ctx, intentID) {
		e.logger.Debug().Str("intentId", intentID).Msg("intent already settled, skipping")
		return nil
	}

	o, err := e.orders.GetByIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if o == nil {
		e.logger.Warn().Str("intentId", intentID).Msg("no order for payment intent")
		return nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	status, err := e.gateway.GetIntentStatus(gwCtx, intentID)
	if err != nil {
		return err
	}

	outcome, err := e.Apply(ctx, o, status)
	if err != nil {
		return err
	}

	switch outcome {
	case OutcomeConfirmed, OutcomeFailed, OutcomeCancelled:
		e.dedup.Mark(ctx, intentID, string(outcome))
	}

	e.logger.Info().Str("intentId", intentID).Str("orderId", o.ID).
		Str("outcome", string(outcome)).Msg("webhook processed")
	return nil
}
