package memory

import (
	"context"
	"sort"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/uow"
)

// OutboxStore implements outbox.Store on a DB.
type OutboxStore struct {
	db          *DB
	maxAttempts int
}

func NewOutboxStore(db *DB, maxAttempts int) *OutboxStore {
	if maxAttempts <= 0 {
		maxAttempts = outbox.DefaultMaxAttempts
	}
	return &OutboxStore{db: db, maxAttempts: maxAttempts}
}

func (s *OutboxStore) Append(ctx context.Context, tx uow.Tx, evt *event.Event) (int64, error) {
	t, err := s.db.active("append outbox entry", tx)
	if err != nil {
		return 0, err
	}
	if _, exists := s.db.events[evt.ID]; exists {
		return 0, domainErrors.NewPersistenceError("append outbox entry", domainErrors.ErrEventIDConflict)
	}

	stored := *evt
	stored.Payload = append([]byte(nil), evt.Payload...)
	s.db.events[evt.ID] = &stored

	s.db.nextOutboxID++
	entry := outbox.NewEntry(&stored, s.db.now())
	entry.ID = s.db.nextOutboxID
	s.db.outbox[entry.ID] = entry

	t.onRollback(func() {
		delete(s.db.events, evt.ID)
		delete(s.db.outbox, entry.ID)
	})
	return entry.ID, nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit, maxAttempts int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []*outbox.Entry
	err := s.db.read(ctx, "fetch pending outbox entries", nil, func() error {
		now := s.db.now()
		for _, e := range s.db.outbox {
			if e.Eligible(now, maxAttempts) {
				entries = append(entries, copyEntry(e))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, tx uow.Tx, id int64) error {
	t, err := s.db.active("mark outbox sent", tx)
	if err != nil {
		return err
	}
	e, ok := s.db.outbox[id]
	if !ok {
		return domainErrors.ErrOutboxEntryNotFound
	}
	if e.Status == outbox.StatusSent {
		return nil
	}

	prev := *e
	now := s.db.now()
	e.Status = outbox.StatusSent
	e.SentAt = &now
	e.NextAttemptAt = nil
	t.onRollback(func() { *e = prev })
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, tx uow.Tx, id int64, cause string, nextAttemptAt time.Time) error {
	t, err := s.db.active("mark outbox failed", tx)
	if err != nil {
		return err
	}
	e, ok := s.db.outbox[id]
	if !ok {
		return domainErrors.ErrOutboxEntryNotFound
	}
	if e.Status == outbox.StatusSent {
		return nil
	}

	prev := *e
	e.Attempts++
	e.LastError = &cause
	next := nextAttemptAt
	e.NextAttemptAt = &next
	if e.Attempts >= s.maxAttempts {
		e.Status = outbox.StatusFailed
	} else {
		e.Status = outbox.StatusPending
	}
	t.onRollback(func() { *e = prev })
	return nil
}

func (s *OutboxStore) Requeue(ctx context.Context, tx uow.Tx, id int64) error {
	t, err := s.db.active("requeue outbox entry", tx)
	if err != nil {
		return err
	}
	e, ok := s.db.outbox[id]
	if !ok {
		return domainErrors.ErrOutboxEntryNotFound
	}
	if e.Status != outbox.StatusFailed {
		return domainErrors.NewDomainError(
			"invalid_transition",
			"only FAILED entries can be requeued, entry is "+string(e.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	prev := *e
	e.Status = outbox.StatusPending
	e.Attempts = 0
	e.NextAttemptAt = nil
	t.onRollback(func() { *e = prev })
	return nil
}

func (s *OutboxStore) Stats(ctx context.Context) (map[outbox.Status]int64, error) {
	stats := map[outbox.Status]int64{
		outbox.StatusPending: 0,
		outbox.StatusSent:    0,
		outbox.StatusFailed:  0,
	}
	err := s.db.read(ctx, "outbox stats", nil, func() error {
		for _, e := range s.db.outbox {
			stats[e.Status]++
		}
		return nil
	})
	return stats, err
}

// Get returns a copy of one entry.
func (s *OutboxStore) Get(ctx context.Context, id int64) (*outbox.Entry, error) {
	var entry *outbox.Entry
	err := s.db.read(ctx, "get outbox entry", nil, func() error {
		e, ok := s.db.outbox[id]
		if !ok {
			return domainErrors.ErrOutboxEntryNotFound
		}
		entry = copyEntry(e)
		return nil
	})
	return entry, err
}

func copyEntry(e *outbox.Entry) *outbox.Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	return &c
}
