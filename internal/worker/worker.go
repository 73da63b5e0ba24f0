// Package worker runs periodic maintenance jobs next to the relay and consumers.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Periodic runs fn every interval until its context is cancelled.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	logger   zerolog.Logger
}

func NewPeriodic(name string, interval time.Duration, logger zerolog.Logger, fn func(ctx context.Context) error) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("worker", name).Logger(),
	}
}

func (w *Periodic) Name() string { return w.name }

// Run blocks until ctx is done. A failing run is logged and retried on the
// next tick. It always returns nil so an errgroup keeps its siblings alive.
func (w *Periodic) Run(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.interval).Msg("Worker starting")
	defer w.logger.Info().Msg("Worker finished")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// Cancellation must not cut a job off mid-transaction.
		if err := w.fn(context.WithoutCancel(ctx)); err != nil {
			w.logger.Error().Err(err).Msg("Worker run failed")
		}
	}
}
