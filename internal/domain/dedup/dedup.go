package dedup

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/domain/uow"
)

// DefaultRetention keeps processed message ids for 14 days, well beyond the
// redelivery window of Redis pending entries and SQS retention (max 14 days).
const DefaultRetention = 14 * 24 * time.Hour

// Entry records that the effect of a message has been applied.
type Entry struct {
	MessageID   string
	ProcessedAt time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the entry no longer blocks a claim at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

type Store interface {
	// TryClaim records messageID inside tx. It returns false when a
	// non-expired entry already exists. The claim commits or rolls back
	// together with tx.
	TryClaim(ctx context.Context, tx uow.Tx, messageID string) (bool, error)

	// PurgeExpired deletes entries that have expired at now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
