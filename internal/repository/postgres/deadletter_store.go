package postgres

import (
	"context"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetterStore persists dead letters in the dead_letters table.
type DeadLetterStore struct {
	pool *pgxpool.Pool
}

func NewDeadLetterStore(pool *pgxpool.Pool) *DeadLetterStore {
	return &DeadLetterStore{pool: pool}
}

func (s *DeadLetterStore) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}
	attrs := dl.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letters (message_id, delivery_id, event_type, body, attributes, reason, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		dl.MessageID, dl.DeliveryID, dl.EventType, dl.Body, attrs, dl.Reason, dl.FailedAt,
	)
	if err != nil {
		return domainErrors.NewPersistenceError("insert dead letter", err)
	}
	return nil
}
