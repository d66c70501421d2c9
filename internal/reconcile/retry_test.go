package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-systems/shop-service-go/internal/order"
	"github.com/storefront-systems/shop-service-go/internal/payment"
)

func failedOrder(id string) *order.Order {
	o := pendingOrder(id, "pi_old_"+id)
	o.OrderStatus = order.StatusFailed
	o.PaymentStatus = order.PaymentFailed
	return o
}

func TestRetryFailedPayments_ReopensWithFreshIntent(t *testing.T) {
	orders := newStateOrders(failedOrder("o1"))
	gw := &fakeGateway{}
	eng, products, _ := newEngineFixture(orders, gw)

	retried, err := eng.RetryFailedPayments(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	got := orders.get("o1")
	assert.Equal(t, order.StatusPending, got.OrderStatus, "retried order rejoins the sweep")
	assert.Equal(t, order.PaymentProcessing, got.PaymentStatus)
	assert.Equal(t, "pi_retry_o1", got.PaymentIntentID)
	assert.Equal(t, []string{"pi_retry_o1"}, gw.intents)

	// stock is reserved again: the failure restore gave it back, the retry
	// reclaims it
	assert.Equal(t, 1, products.stock["p7"])
	assert.Equal(t, 1, products.stock["p9"])
}

func TestRetryFailedPayments_SkipsUncoverableOrders(t *testing.T) {
	orders := newStateOrders(failedOrder("o1"))
	gw := &fakeGateway{}
	eng, products, _ := newEngineFixture(orders, gw)
	products.stock["p7"] = 1 // order wants 2

	retried, err := eng.RetryFailedPayments(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, 0, retried)
	assert.Empty(t, gw.intents, "no intent opened for an uncoverable order")

	got := orders.get("o1")
	assert.Equal(t, order.StatusFailed, got.OrderStatus)
	assert.Equal(t, "pi_old_o1", got.PaymentIntentID)
	assert.Equal(t, map[string]int{"p7": 1, "p9": 2}, products.stock)
}

func TestRetryFailedPayments_IgnoresNonFailedOrders(t *testing.T) {
	orders := newStateOrders(pendingOrder("o1", "pi_1"))
	gw := &fakeGateway{}
	eng, _, _ := newEngineFixture(orders, gw)

	retried, err := eng.RetryFailedPayments(context.Background(), "usd")
	require.NoError(t, err)
	assert.Equal(t, 0, retried)
	assert.Empty(t, gw.intents)
}

// End-to-end retry: fail, retry, then the sweep confirms the new intent.
func TestRetryThenSweepConfirms(t *testing.T) {
	o := pendingOrder("o1", "pi_1")
	orders := newStateOrders(o)
	gw := &fakeGateway{statuses: map[string]string{"pi_1": payment.IntentRequiresPaymentMethod}}
	eng, products, _ := newEngineFixture(orders, gw)

	_, err := eng.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, order.StatusFailed, orders.get("o1").OrderStatus)
	require.Equal(t, map[string]int{"p7": 5, "p9": 3}, products.stock, "restored on failure")

	retried, err := eng.RetryFailedPayments(context.Background(), "usd")
	require.NoError(t, err)
	require.Equal(t, 1, retried)

	gw.mu.Lock()
	gw.statuses["pi_retry_o1"] = payment.IntentSucceeded
	gw.mu.Unlock()

	sum, err := eng.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Confirmed)

	got := orders.get("o1")
	assert.Equal(t, order.StatusConfirmed, got.OrderStatus)
	assert.Equal(t, order.PaymentSucceeded, got.PaymentStatus)
	assert.Equal(t, map[string]int{"p7": 3, "p9": 2}, products.stock, "confirmed order keeps the retry reservation")
}
