package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Open connects a pgx pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// MustOpen is Open for main wiring; it exits the process on failure.
func MustOpen(ctx context.Context, dsn string, logger zerolog.Logger) *pgxpool.Pool {
	pool, err := Open(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	return pool
}
