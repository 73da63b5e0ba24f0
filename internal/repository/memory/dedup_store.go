package memory

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/domain/dedup"
	"github.com/cassiomorais/orders/internal/domain/uow"
)

// DedupStore implements dedup.Store on a DB.
type DedupStore struct {
	db        *DB
	retention time.Duration
}

func NewDedupStore(db *DB, retention time.Duration) *DedupStore {
	if retention <= 0 {
		retention = dedup.DefaultRetention
	}
	return &DedupStore{db: db, retention: retention}
}

func (s *DedupStore) TryClaim(ctx context.Context, tx uow.Tx, messageID string) (bool, error) {
	t, err := s.db.active("claim message", tx)
	if err != nil {
		return false, err
	}

	now := s.db.now()
	prev, exists := s.db.processed[messageID]
	if exists && prev.expiresAt.After(now) {
		return false, nil
	}

	s.db.processed[messageID] = processedMessage{processedAt: now, expiresAt: now.Add(s.retention)}
	t.onRollback(func() {
		if exists {
			s.db.processed[messageID] = prev
			return
		}
		delete(s.db.processed, messageID)
	})
	return true, nil
}

func (s *DedupStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := s.db.read(ctx, "purge processed messages", nil, func() error {
		for id, m := range s.db.processed {
			if !m.expiresAt.After(now) {
				delete(s.db.processed, id)
				purged++
			}
		}
		return nil
	})
	return purged, err
}

// Entries returns a snapshot of all dedup entries.
func (s *DedupStore) Entries(ctx context.Context) ([]dedup.Entry, error) {
	var entries []dedup.Entry
	err := s.db.read(ctx, "list processed messages", nil, func() error {
		for id, m := range s.db.processed {
			entries = append(entries, dedup.Entry{MessageID: id, ProcessedAt: m.processedAt, ExpiresAt: m.expiresAt})
		}
		return nil
	})
	return entries, err
}
