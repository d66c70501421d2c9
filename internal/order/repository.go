package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	GetByIntent(ctx context.Context, intentID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListOpen returns every order the reconciliation sweep should look at:
	// Pending orders and orders whose payment is still processing.
	ListOpen(ctx context.Context) ([]Order, error)
	ListFailed(ctx context.Context) ([]Order, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	SetIntent(ctx context.Context, orderID, intentID string, status PaymentStatus) error
	// ReopenTx moves a Failed order back to Pending with a fresh payment
	// intent. Callers must re-reserve the order's inventory in the same
	// transaction: a Pending order always holds its reservation.
	ReopenTx(ctx context.Context, tx pgx.Tx, orderID, intentID string) (bool, error)
	MarkProcessing(ctx context.Context, orderID string) (bool, error)
	MarkSucceededTx(ctx context.Context, tx pgx.Tx, orderID string) (bool, error)
	MarkTerminalTx(ctx context.Context, tx pgx.Tx, orderID string, st Status, ps PaymentStatus) (bool, error)
}

type repo struct {
	pool DBPool
}

func NewRepository(pool DBPool) Repository {
	return &repo{pool: pool}
}

const orderColumns = `id, user_id, order_status, COALESCE(payment_status, ''),
	COALESCE(payment_intent_id, ''), total_amount, created_at, updated_at, paid_at`

func (r *repo) CreateTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, order_status, payment_status, payment_intent_id,
		                    total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`,
		o.ID, o.UserID, string(o.OrderStatus), string(o.PaymentStatus), o.PaymentIntentID,
		o.TotalAmount, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price, amount)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), o.ID, it.ProductID, it.Quantity, it.Price, it.Amount,
		)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	return nil
}

func (r *repo) GetByID(ctx context.Context, orderID string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
}

// GetByIntent looks an order up by its gateway payment-intent reference, the
// join key webhooks carry. Returns nil when no order has the intent.
func (r *repo) GetByIntent(ctx context.Context, intentID string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, intentID)
}

func (r *repo) getOne(ctx context.Context, query, arg string) (*Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&o.ID, &o.UserID, &o.OrderStatus, &o.PaymentStatus,
		&o.PaymentIntentID, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	if err := r.loadItems(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, price, amount FROM order_items WHERE order_id = $1`, o.ID)
	if err != nil {
		return fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price, &it.Amount); err != nil {
			return fmt.Errorf("scan order_item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *repo) ListOpen(ctx context.Context) ([]Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE order_status = $1 OR payment_status = $2
		 ORDER BY created_at`, string(StatusPending), string(PaymentProcessing))
}

func (r *repo) ListFailed(ctx context.Context) ([]Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE order_status = $1 AND payment_status = $2
		 ORDER BY created_at`, string(StatusFailed), string(PaymentFailed))
}

func (r *repo) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		err := rows.Scan(&o.ID, &o.UserID, &o.OrderStatus, &o.PaymentStatus,
			&o.PaymentIntentID, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func (r *repo) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// SetIntent attaches a (new) gateway payment-intent reference to an order.
// Used when a session is opened and when a failed payment is retried.
func (r *repo) SetIntent(ctx context.Context, orderID, intentID string, status PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET payment_intent_id = $2, payment_status = NULLIF($3, ''), updated_at = now()
		WHERE id = $1`,
		orderID, intentID, string(status),
	)
	if err != nil {
		return fmt.Errorf("set intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}
	return nil
}

func (r *repo) ReopenTx(ctx context.Context, tx pgx.Tx, orderID, intentID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET order_status = $2, payment_status = $3, payment_intent_id = $4, updated_at = now()
		WHERE id = $1 AND order_status = $5`,
		orderID, string(StatusPending), string(PaymentProcessing), intentID, string(StatusFailed),
	)
	if err != nil {
		return false, fmt.Errorf("reopen order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkProcessing records that the gateway is still working on the payment.
// Gated on Pending so a terminal order is never resurrected by a stale
// webhook or sweep observation.
func (r *repo) MarkProcessing(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2, updated_at = now()
		WHERE id = $1 AND order_status = $3`,
		orderID, string(PaymentProcessing), string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repo) MarkSucceededTx(ctx context.Context, tx pgx.Tx, orderID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET order_status = $2, payment_status = $3, paid_at = now(), updated_at = now()
		WHERE id = $1 AND order_status = $4`,
		orderID, string(StatusConfirmed), string(PaymentSucceeded), string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark succeeded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkTerminalTx flips an order into a terminal failure state. The WHERE
// clause is the idempotence boundary: the update only applies while the order
// is still Pending, so whichever driver (sweep or webhook) commits first wins
// and the loser sees zero affected rows and must not restore inventory again.
func (r *repo) MarkTerminalTx(ctx context.Context, tx pgx.Tx, orderID string, st Status, ps PaymentStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET order_status = $2, payment_status = $3, updated_at = now()
		WHERE id = $1 AND order_status = $4`,
		orderID, string(st), string(ps), string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", st, err)
	}
	return tag.RowsAffected() == 1, nil
}
