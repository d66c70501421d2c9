package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper drives periodic reconciliation passes. It runs until its context
// is cancelled; the engine itself checks the context between orders so a
// pass in flight also stops promptly on shutdown.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(engine *Engine, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("payment reconciliation sweeper started")

	// First pass only after one full interval, so a restart storm does not
	// hammer the gateway.
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("payment reconciliation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.engine.ReconcileAll(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}
