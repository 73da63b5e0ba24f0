package memory

import (
	"context"

	"github.com/cassiomorais/orders/internal/messaging"
)

// DeadLetterStore keeps dead letters on a DB.
type DeadLetterStore struct {
	db *DB
}

func NewDeadLetterStore(db *DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

func (s *DeadLetterStore) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	return s.db.read(ctx, "insert dead letter", nil, func() error {
		if dl.FailedAt.IsZero() {
			dl.FailedAt = s.db.now()
		}
		s.db.deadLetters = append(s.db.deadLetters, dl)
		return nil
	})
}

// List returns dead letters in arrival order.
func (s *DeadLetterStore) List(ctx context.Context) ([]messaging.DeadLetter, error) {
	var out []messaging.DeadLetter
	err := s.db.read(ctx, "list dead letters", nil, func() error {
		out = append(out, s.db.deadLetters...)
		return nil
	})
	return out, err
}
