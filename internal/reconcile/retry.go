package reconcile

import (
	"context"
	"fmt"

	"github.com/storefront-systems/shop-service-go/internal/checkout"
	"github.com/storefront-systems/shop-service-go/internal/domain"
	"github.com/storefront-systems/shop-service-go/internal/order"
)

// RetryFailedPayments opens a fresh payment intent for every order stuck in
// Failed/failed and moves it back to Pending. Inventory was restored when the
// order failed, so the retry re-reserves it, in the same transaction as the
// reopen: once the order is Pending again the normal reconciliation table
// applies, including the restore-on-failure branch. Orders whose items the
// shelf can no longer cover are skipped and logged.
func (e *Engine) RetryFailedPayments(ctx context.Context, currency string) (int, error) {
	failed, err := e.orders.ListFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list failed orders: %w", err)
	}

	e.logger.Info().Int("orders", len(failed)).Msg("failed payment retry started")

	retried := 0
	for i := range failed {
		if err := ctx.Err(); err != nil {
			return retried, nil
		}

		o := &failed[i]

		// Advisory fast path so chronically short orders don't burn a
		// gateway intent on every retry invocation. The reservation below
		// is the real check.
		if !e.itemsAvailable(ctx, o) {
			e.logger.Warn().Str("orderId", o.ID).Msg("stock no longer covers order, retry skipped")
			continue
		}

		gwCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
		intent, err := e.gateway.CreateIntent(gwCtx, checkout.MinorUnits(o.TotalAmount), currency, map[string]string{
			"orderId": o.ID,
			"userId":  o.UserID,
			"retry":   "true",
		})
		cancel()
		if err != nil {
			e.logger.Error().Err(err).Str("orderId", o.ID).Msg("create retry intent")
			e.metrics.observeSweepError()
			continue
		}

		applied, err := e.reopenOrder(ctx, o, intent.IntentID)
		if err != nil {
			if domain.IsKind(err, domain.KindUnavailable) {
				e.logger.Warn().Err(err).Str("orderId", o.ID).Msg("stock claimed before retry completed, skipped")
			} else {
				e.logger.Error().Err(err).Str("orderId", o.ID).Msg("reopen order for retry")
				e.metrics.observeSweepError()
			}
			continue
		}
		if !applied {
			continue
		}

		e.logger.Info().Str("orderId", o.ID).Str("intentId", intent.IntentID).
			Msg("new payment intent created for failed order")
		retried++
	}

	e.logger.Info().Int("retried", retried).Msg("failed payment retry completed")
	return retried, nil
}

// reopenOrder re-reserves the order's items and flips it Failed -> Pending
// atomically. A reservation failure rolls the whole attempt back; the fresh
// intent is left unattached and expires at the gateway.
func (e *Engine) reopenOrder(ctx context.Context, o *order.Order, intentID string) (bool, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range o.Items {
		if _, _, err := e.products.ReserveTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return false, domain.Unavailable("product %s no longer available", it.ProductID)
			}
			return false, err
		}
	}

	applied, err := e.orders.ReopenTx(ctx, tx, o.ID, intentID)
	if err != nil {
		return false, err
	}
	if !applied {
		// Order left Failed between the list and now; drop the attempt.
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (e *Engine) itemsAvailable(ctx context.Context, o *order.Order) bool {
	for _, it := range o.Items {
		p, err := e.products.GetByID(ctx, it.ProductID)
		if err != nil || p.Quantity < it.Quantity {
			return false
		}
	}
	return true
}
