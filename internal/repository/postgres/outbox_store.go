package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `o.id, o.event_id, e.type, e.payload, e.occurred_at, o.status, o.attempts,
	o.last_error, o.created_at, o.sent_at, o.next_attempt_at`

// OutboxStore implements outbox.Store using PostgreSQL.
type OutboxStore struct {
	pool        *pgxpool.Pool
	maxAttempts int
	now         func() time.Time
}

// NewOutboxStore creates a store that parks entries as FAILED after
// maxAttempts failed publishes.
func NewOutboxStore(pool *pgxpool.Pool, maxAttempts int) *OutboxStore {
	if maxAttempts <= 0 {
		maxAttempts = outbox.DefaultMaxAttempts
	}
	return &OutboxStore{pool: pool, maxAttempts: maxAttempts, now: time.Now}
}

func (s *OutboxStore) Append(ctx context.Context, tx uow.Tx, evt *event.Event) (int64, error) {
	db, err := conn("append outbox entry", tx)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.QueryRow(ctx,
		`WITH ev AS (
			INSERT INTO events (id, type, payload, occurred_at) VALUES ($1, $2, $3, $4)
			RETURNING id
		)
		INSERT INTO outbox (event_id, status, attempts, created_at)
		SELECT id, 'PENDING', 0, $5 FROM ev
		RETURNING id`,
		evt.ID, string(evt.Type), []byte(evt.Payload), evt.OccurredAt, s.now(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domainErrors.NewPersistenceError("append outbox entry", domainErrors.ErrEventIDConflict)
		}
		return 0, domainErrors.NewPersistenceError("append outbox entry", err)
	}
	return id, nil
}

// FetchPending reads due entries without locking them. Concurrent relays are
// kept apart by the relay lease, not by this query.
func (s *OutboxStore) FetchPending(ctx context.Context, limit, maxAttempts int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox o JOIN events e ON e.id = o.event_id
		 WHERE (o.status = 'PENDING' OR (o.status = 'FAILED' AND o.attempts < $1))
		   AND (o.next_attempt_at IS NULL OR o.next_attempt_at <= $2)
		 ORDER BY o.created_at ASC, o.id ASC
		 LIMIT $3`,
		maxAttempts, s.now(), limit,
	)
	if err != nil {
		return nil, domainErrors.NewPersistenceError("fetch pending outbox entries", err)
	}
	defer rows.Close()

	var entries []*outbox.Entry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.NewPersistenceError("fetch pending outbox entries", err)
	}
	return entries, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, tx uow.Tx, id int64) error {
	db, err := conn("mark outbox sent", tx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx,
		`UPDATE outbox SET status = 'SENT', sent_at = COALESCE(sent_at, $2), next_attempt_at = NULL
		 WHERE id = $1`, id, s.now(),
	)
	if err != nil {
		return domainErrors.NewPersistenceError("mark outbox sent", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOutboxEntryNotFound
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, tx uow.Tx, id int64, cause string, nextAttemptAt time.Time) error {
	db, err := conn("mark outbox failed", tx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3,
		        status = CASE WHEN attempts + 1 >= $4 THEN 'FAILED' ELSE 'PENDING' END
		 WHERE id = $1 AND status <> 'SENT'`,
		id, cause, nextAttemptAt, s.maxAttempts,
	)
	if err != nil {
		return domainErrors.NewPersistenceError("mark outbox failed", err)
	}
	if tag.RowsAffected() == 0 {
		_, err := s.status(ctx, db, id)
		return err
	}
	return nil
}

func (s *OutboxStore) Requeue(ctx context.Context, tx uow.Tx, id int64) error {
	db, err := conn("requeue outbox entry", tx)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx,
		`UPDATE outbox SET status = 'PENDING', attempts = 0, next_attempt_at = NULL
		 WHERE id = $1 AND status = 'FAILED'`, id,
	)
	if err != nil {
		return domainErrors.NewPersistenceError("requeue outbox entry", err)
	}
	if tag.RowsAffected() == 0 {
		status, err := s.status(ctx, db, id)
		if err != nil {
			return err
		}
		return domainErrors.NewDomainError(
			"invalid_transition",
			"only FAILED entries can be requeued, entry is "+string(status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	return nil
}

func (s *OutboxStore) Stats(ctx context.Context) (map[outbox.Status]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, domainErrors.NewPersistenceError("outbox stats", err)
	}
	defer rows.Close()

	stats := map[outbox.Status]int64{
		outbox.StatusPending: 0,
		outbox.StatusSent:    0,
		outbox.StatusFailed:  0,
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outbox stats: %w", err)
		}
		stats[outbox.Status(status)] = count
	}
	return stats, rows.Err()
}

// Get retrieves one entry by id.
func (s *OutboxStore) Get(ctx context.Context, id int64) (*outbox.Entry, error) {
	return scanOutboxEntry(s.pool.QueryRow(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox o JOIN events e ON e.id = o.event_id
		 WHERE o.id = $1`, id))
}

func (s *OutboxStore) status(ctx context.Context, db DBTX, id int64) (outbox.Status, error) {
	var status string
	err := db.QueryRow(ctx, `SELECT status FROM outbox WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domainErrors.ErrOutboxEntryNotFound
		}
		return "", domainErrors.NewPersistenceError("get outbox status", err)
	}
	return outbox.Status(status), nil
}

func scanOutboxEntry(s scanner) (*outbox.Entry, error) {
	e := &outbox.Entry{}
	var (
		eventType string
		status    string
		payload   []byte
	)
	err := s.Scan(&e.ID, &e.EventID, &eventType, &payload, &e.OccurredAt, &status, &e.Attempts,
		&e.LastError, &e.CreatedAt, &e.SentAt, &e.NextAttemptAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOutboxEntryNotFound
		}
		return nil, fmt.Errorf("scan outbox entry: %w", err)
	}
	e.EventType = event.Type(eventType)
	e.Status = outbox.Status(status)
	e.Payload = payload
	return e, nil
}
