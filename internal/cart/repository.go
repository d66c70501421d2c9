package cart

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
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	Upsert(ctx context.Context, c *Cart) error
	ClearTx(ctx context.Context, tx pgx.Tx, cartID string) error
}

type repo struct {
	pool DBPool
}

func NewRepository(pool DBPool) Repository {
	return &repo{pool: pool}
}

// GetByUser returns nil when the user has no cart; callers decide whether
// that is an error.
func (r *repo) GetByUser(ctx context.Context, userID string) (*Cart, error) {
	var c Cart
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, total, updated_at FROM carts WHERE user_id = $1`,
		userID,
	).Scan(&c.ID, &c.UserID, &c.Total, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, price, amount FROM cart_items WHERE cart_id = $1`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("select cart_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Price, &it.Amount); err != nil {
			return nil, fmt.Errorf("scan cart_item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return &c, nil
}

func (r *repo) Upsert(ctx context.Context, c *Cart) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	c.Total = 0
	for _, it := range c.Items {
		c.Total += it.Amount
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, total, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET total = EXCLUDED.total, updated_at = now()
		RETURNING id, updated_at
	`, c.ID, c.UserID, c.Total).Scan(&c.ID, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID); err != nil {
		return fmt.Errorf("delete cart_items: %w", err)
	}

	for _, it := range c.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO cart_items (id, cart_id, product_id, quantity, price, amount)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), c.ID, it.ProductID, it.Quantity, it.Price, it.Amount,
		)
		if err != nil {
			return fmt.Errorf("insert cart_item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ClearTx empties the cart without deleting it: the row stays, its total
// drops to zero. Runs in the caller's transaction so the clear commits or
// rolls back together with the order it fed.
func (r *repo) ClearTx(ctx context.Context, tx pgx.Tx, cartID string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart_items: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE carts SET total = 0, updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("reset cart total: %w", err)
	}
	return nil
}
