package postgres

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/domain/dedup"
	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DedupStore implements dedup.Store on the processed_messages table.
type DedupStore struct {
	pool      *pgxpool.Pool
	retention time.Duration
	now       func() time.Time
}

func NewDedupStore(pool *pgxpool.Pool, retention time.Duration) *DedupStore {
	if retention <= 0 {
		retention = dedup.DefaultRetention
	}
	return &DedupStore{pool: pool, retention: retention, now: time.Now}
}

// TryClaim relies on the primary key of processed_messages: a concurrent
// claimant blocks on the conflicting row and then sees it as already claimed.
// An expired row is taken over in place.
func (s *DedupStore) TryClaim(ctx context.Context, tx uow.Tx, messageID string) (bool, error) {
	db, err := conn("claim message", tx)
	if err != nil {
		return false, err
	}
	now := s.now()
	tag, err := db.Exec(ctx,
		`INSERT INTO processed_messages (message_id, processed_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO UPDATE
		   SET processed_at = EXCLUDED.processed_at, expires_at = EXCLUDED.expires_at
		   WHERE processed_messages.expires_at <= EXCLUDED.processed_at`,
		messageID, now, now.Add(s.retention),
	)
	if err != nil {
		return false, domainErrors.NewPersistenceError("claim message", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *DedupStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processed_messages WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, domainErrors.NewPersistenceError("purge processed messages", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored dedup entries.
func (s *DedupStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_messages`).Scan(&n); err != nil {
		return 0, domainErrors.NewPersistenceError("count processed messages", err)
	}
	return n, nil
}
