package outbox

import (
	"encoding/json"
	"time"

	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/google/uuid"
)

// Entry tracks the delivery of one event to the message bus.
type Entry struct {
	ID            int64
	EventID       uuid.UUID
	EventType     event.Type
	Payload       json.RawMessage
	OccurredAt    time.Time
	Status        Status
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	SentAt        *time.Time
	NextAttemptAt *time.Time
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPending, StatusSent, StatusFailed},
	StatusFailed:  {StatusPending, StatusSent, StatusFailed},
	StatusSent:    {},
}

// CanTransitionTo reports whether an entry in status s may move to next.
// SENT is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Event rebuilds the event record the entry was appended for.
func (e *Entry) Event() *event.Event {
	return &event.Event{
		ID:         e.EventID,
		Type:       e.EventType,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	}
}

// NewEntry creates a PENDING entry for evt.
func NewEntry(evt *event.Event, createdAt time.Time) *Entry {
	return &Entry{
		EventID:    evt.ID,
		EventType:  evt.Type,
		Payload:    evt.Payload,
		OccurredAt: evt.OccurredAt,
		Status:     StatusPending,
		CreatedAt:  createdAt,
	}
}

// Eligible reports whether the relay may attempt the entry at now.
func (e *Entry) Eligible(now time.Time, maxAttempts int) bool {
	switch e.Status {
	case StatusPending:
	case StatusFailed:
		if e.Attempts >= maxAttempts {
			return false
		}
	default:
		return false
	}
	return e.NextAttemptAt == nil || !e.NextAttemptAt.After(now)
}
