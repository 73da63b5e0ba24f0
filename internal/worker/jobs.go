package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/dedup"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/rs/zerolog"
)

type PurgeMetrics interface {
	DedupPurgedClaims(n int64)
}

type StatsMetrics interface {
	SetOutboxStats(stats map[string]int64)
}

// PurgeDedup returns a job deleting expired dedup claims.
func PurgeDedup(store dedup.Store, now func() time.Time, m PurgeMetrics, logger zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		n, err := store.PurgeExpired(ctx, now())
		if err != nil {
			return fmt.Errorf("purge expired claims: %w", err)
		}
		if m != nil {
			m.DedupPurgedClaims(n)
		}
		if n > 0 {
			logger.Info().Int64("purged", n).Msg("Expired dedup claims purged")
		}
		return nil
	}
}

// ReportOutboxStats returns a job publishing per-status outbox counts. Every
// status is reported so a drained status drops back to zero.
func ReportOutboxStats(store outbox.Store, m StatsMetrics) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("outbox stats: %w", err)
		}
		out := map[string]int64{
			string(outbox.StatusPending): 0,
			string(outbox.StatusSent):    0,
			string(outbox.StatusFailed):  0,
		}
		for status, n := range stats {
			out[string(status)] = n
		}
		m.SetOutboxStats(out)
		return nil
	}
}
