package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/storefront-systems/shop-service-go/internal/domain"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository interface {
	GetByID(ctx context.Context, productID string) (Product, error)
	Reserve(ctx context.Context, productID string, qty int) (remaining int, err error)
	ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) (remaining int, price float64, err error)
	RestoreTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetByID(ctx context.Context, productID string) (Product, error) {
	var p Product
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, category, price, quantity, updated_at FROM products WHERE id=$1`,
		productID,
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Quantity, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, domain.NotFound("product %s not found", productID)
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// Reserve decrements stock in its own transaction. Callers that need the
// reservation to be atomic with other writes use ReserveTx instead.
func (r *PostgresRepository) Reserve(ctx context.Context, productID string, qty int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	remaining, _, err := r.ReserveTx(ctx, tx, productID, qty)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return remaining, nil
}

// ReserveTx is a single conditional decrement: it only applies when enough
// stock is on hand, so two callers racing for the last units serialize on the
// row and at most one succeeds. The quantity >= 0 invariant can never be
// violated mid-transaction.
func (r *PostgresRepository) ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) (int, float64, error) {
	if qty <= 0 {
		return 0, 0, domain.InvalidArgument("quantity must be positive, got %d", qty)
	}

	var remaining int
	var price float64
	err := tx.QueryRow(ctx, `
		UPDATE products
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity, price
	`, productID, qty).Scan(&remaining, &price)
	if err == nil {
		return remaining, price, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, fmt.Errorf("reserve stock: %w", err)
	}

	// No row matched: either the product is missing or stock is short.
	var available int
	err = tx.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, domain.NotFound("product %s not found", productID)
		}
		return 0, 0, fmt.Errorf("check stock: %w", err)
	}
	return 0, 0, domain.Unavailable("insufficient stock for product %s: available %d, requested %d", productID, available, qty)
}

// RestoreTx increments stock unconditionally. Idempotency is the caller's
// responsibility: the reconciliation engine only invokes it inside the same
// transaction as a terminal status flip that applied.
func (r *PostgresRepository) RestoreTx(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product %s not found", productID)
	}
	return nil
}
