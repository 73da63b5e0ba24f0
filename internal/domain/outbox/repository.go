package outbox

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/uow"
)

// DefaultMaxAttempts is the publish attempt ceiling after which an entry is
// parked as FAILED.
const DefaultMaxAttempts = 5

type Store interface {
	// Append inserts evt and a PENDING entry inside the caller's transaction.
	Append(ctx context.Context, tx uow.Tx, evt *event.Event) (int64, error)

	// FetchPending returns PENDING entries and FAILED entries with fewer than
	// maxAttempts attempts whose backoff has elapsed, oldest first.
	FetchPending(ctx context.Context, limit, maxAttempts int) ([]*Entry, error)

	// MarkSent moves an entry to SENT. Marking a SENT entry again is a no-op.
	MarkSent(ctx context.Context, tx uow.Tx, id int64) error

	// MarkFailed records a failed publish attempt. The entry becomes FAILED once
	// its attempts reach the store's ceiling and stays retryable otherwise.
	MarkFailed(ctx context.Context, tx uow.Tx, id int64, cause string, nextAttemptAt time.Time) error

	// Requeue moves a FAILED entry back to PENDING with a fresh attempt budget.
	Requeue(ctx context.Context, tx uow.Tx, id int64) error

	// Stats counts entries per status.
	Stats(ctx context.Context) (map[Status]int64, error)
}
