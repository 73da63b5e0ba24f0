package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type tags the payload schema of an event. Tags carry a version suffix.
type Type string

const (
	TypeOrderCreated     Type = "order.created.v1"
	TypePaymentCompleted Type = "payment.completed.v1"
	TypePaymentFailed    Type = "payment.failed.v1"
)

// Event is an immutable domain event record.
type Event struct {
	ID         uuid.UUID
	Type       Type
	Payload    json.RawMessage
	OccurredAt time.Time
}

// New builds an event with a time-ordered id, marshalling payload to JSON.
func New(eventType Type, payload any, occurredAt time.Time) (*Event, error) {
	if eventType == "" {
		return nil, errors.NewValidationError("type", "is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	return &Event{
		ID:         id,
		Type:       eventType,
		Payload:    data,
		OccurredAt: occurredAt.UTC(),
	}, nil
}

// DecodePayload unmarshals the event payload into dst.
func (e *Event) DecodePayload(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return errors.NewMalformedEventError("decode "+string(e.Type)+" payload", err)
	}
	return nil
}

type envelope struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Marshal serializes the event into its wire envelope.
func Marshal(e *Event) ([]byte, error) {
	return json.Marshal(envelope{
		ID:         e.ID,
		Type:       e.Type,
		OccurredAt: e.OccurredAt,
		Payload:    e.Payload,
	})
}

// Unmarshal parses a wire envelope. Any structural problem yields a
// *errors.MalformedEventError.
func Unmarshal(data []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.NewMalformedEventError("decode envelope", err)
	}
	if env.ID == uuid.Nil {
		return nil, errors.NewMalformedEventError("missing id", nil)
	}
	if env.Type == "" {
		return nil, errors.NewMalformedEventError("missing type", nil)
	}
	if env.OccurredAt.IsZero() {
		return nil, errors.NewMalformedEventError("missing occurred_at", nil)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil, errors.NewMalformedEventError("missing payload", nil)
	}
	return &Event{
		ID:         env.ID,
		Type:       env.Type,
		Payload:    env.Payload,
		OccurredAt: env.OccurredAt,
	}, nil
}

// OrderCreated is the payload of order.created.v1.
type OrderCreated struct {
	OrderID uuid.UUID       `json:"order_id"`
	Product string          `json:"product"`
	Amount  decimal.Decimal `json:"amount"`
}

// PaymentCompleted is the payload of payment.completed.v1.
type PaymentCompleted struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentFailed is the payload of payment.failed.v1.
type PaymentFailed struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}
