package order

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-systems/shop-service-go/internal/cart"
	"github.com/storefront-systems/shop-service-go/internal/catalog"
	"github.com/storefront-systems/shop-service-go/internal/domain"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	DBPool
	lastTx *fakeTx
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	p.lastTx = &fakeTx{}
	return p.lastTx, nil
}

type fakeOrderRepo struct {
	Repository
	userExists   bool
	createdOrder *Order
	createErr    error
}

func (f *fakeOrderRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	return f.userExists, nil
}

func (f *fakeOrderRepo) CreateTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	f.createdOrder = o
	return f.createErr
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return nil, nil
}

type fakeCartRepo struct {
	cart.Repository
	cart         *cart.Cart
	clearedCarts []string
}

func (f *fakeCartRepo) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	return f.cart, nil
}

func (f *fakeCartRepo) ClearTx(ctx context.Context, tx pgx.Tx, cartID string) error {
	f.clearedCarts = append(f.clearedCarts, cartID)
	return nil
}

// fakeCatalog holds live stock and prices so reservations behave like the
// conditional update would: check and decrement under one lock.
type fakeCatalog struct {
	catalog.Repository

	mu     sync.Mutex
	stock  map[string]int
	prices map[string]float64
}

func (f *fakeCatalog) ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) (int, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[productID]
	if !ok {
		return 0, 0, domain.NotFound("product %s not found", productID)
	}
	if f.stock[productID] < qty {
		return 0, 0, domain.Unavailable("insufficient stock for product %s", productID)
	}
	f.stock[productID] -= qty
	return f.stock[productID], price, nil
}

func newPlaceOrderFixture(c *cart.Cart, stock map[string]int, prices map[string]float64) (*Service, *fakePool, *fakeOrderRepo, *fakeCartRepo, *fakeCatalog) {
	pool := &fakePool{}
	orders := &fakeOrderRepo{userExists: true}
	carts := &fakeCartRepo{cart: c}
	products := &fakeCatalog{stock: stock, prices: prices}
	svc := NewService(pool, orders, carts, products, nil, zerolog.Nop())
	return svc, pool, orders, carts, products
}

func TestPlaceOrder_UserNotFound(t *testing.T) {
	svc, _, orders, _, _ := newPlaceOrderFixture(nil, nil, nil)
	orders.userExists = false

	_, err := svc.PlaceOrder(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	svc, _, _, _, _ := newPlaceOrderFixture(&cart.Cart{ID: "cart-1", UserID: "user-1"}, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidState, domain.KindOf(err))
}

func TestPlaceOrder_CommitsCartAsOrder(t *testing.T) {
	c := &cart.Cart{
		ID:     "cart-1",
		UserID: "user-1",
		Items: []cart.Item{
			// cached cart prices are stale on purpose: the order must use
			// the catalog's current prices
			{ProductID: "p7", Quantity: 2, Price: 9.00, Amount: 18.00},
			{ProductID: "p9", Quantity: 1, Price: 4.00, Amount: 4.00},
		},
	}
	svc, pool, orders, carts, products := newPlaceOrderFixture(c,
		map[string]int{"p7": 5, "p9": 3},
		map[string]float64{"p7": 10.00, "p9": 5.00},
	)

	o, err := svc.PlaceOrder(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.OrderStatus)
	assert.Equal(t, PaymentNone, o.PaymentStatus)
	assert.Equal(t, 25.00, o.TotalAmount)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 10.00, o.Items[0].Price)
	assert.Equal(t, 20.00, o.Items[0].Amount)
	assert.Equal(t, 5.00, o.Items[1].Amount)

	var sum float64
	for _, it := range o.Items {
		sum += it.Amount
	}
	assert.Equal(t, o.TotalAmount, sum)

	assert.Equal(t, 3, products.stock["p7"])
	assert.Equal(t, 2, products.stock["p9"])
	assert.Equal(t, []string{"cart-1"}, carts.clearedCarts)
	require.NotNil(t, orders.createdOrder)
	require.NotNil(t, pool.lastTx)
	assert.True(t, pool.lastTx.committed)
}

func TestPlaceOrder_InsufficientStockRollsBack(t *testing.T) {
	c := &cart.Cart{
		ID:     "cart-1",
		UserID: "user-1",
		Items: []cart.Item{
			{ProductID: "p7", Quantity: 2},
			{ProductID: "p9", Quantity: 5},
		},
	}
	svc, pool, orders, carts, _ := newPlaceOrderFixture(c,
		map[string]int{"p7": 5, "p9": 1},
		map[string]float64{"p7": 10.00, "p9": 5.00},
	)

	_, err := svc.PlaceOrder(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	assert.Nil(t, orders.createdOrder)
	assert.Empty(t, carts.clearedCarts)
	require.NotNil(t, pool.lastTx)
	assert.True(t, pool.lastTx.rolledBack)
	assert.False(t, pool.lastTx.committed)
}

func TestPlaceOrder_VanishedProductReportedAsUnavailable(t *testing.T) {
	c := &cart.Cart{
		ID:     "cart-1",
		UserID: "user-1",
		Items:  []cart.Item{{ProductID: "deleted", Quantity: 1}},
	}
	svc, _, _, _, _ := newPlaceOrderFixture(c, map[string]int{}, map[string]float64{})

	_, err := svc.PlaceOrder(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
}

func TestPlaceOrder_ConcurrentCallersForLastUnit(t *testing.T) {
	newSvc := func(products *fakeCatalog) *Service {
		c := &cart.Cart{
			ID:     "cart-1",
			UserID: "user-1",
			Items:  []cart.Item{{ProductID: "p1", Quantity: 1}},
		}
		return NewService(&fakePool{}, &fakeOrderRepo{userExists: true}, &fakeCartRepo{cart: c}, products, nil, zerolog.Nop())
	}

	products := &fakeCatalog{
		stock:  map[string]int{"p1": 1},
		prices: map[string]float64{"p1": 10.00},
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = newSvc(products).PlaceOrder(context.Background(), "user-1")
		}(i)
	}
	wg.Wait()

	var ok, unavailable int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if domain.IsKind(err, domain.KindUnavailable) {
			unavailable++
		}
	}
	assert.Equal(t, 1, ok, "exactly one caller wins the last unit")
	assert.Equal(t, 1, unavailable)
	assert.Equal(t, 0, products.stock["p1"])
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, _, _, _, _ := newPlaceOrderFixture(nil, nil, nil)

	_, err := svc.GetOrder(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
