package messaging

import (
	"context"
	"time"

	"github.com/cassiomorais/orders/internal/domain/event"
)

// Attribute keys carried alongside every published event.
const (
	AttrEventID   = "event_id"
	AttrEventType = "event_type"
)

// Message is an outbound publish request.
type Message struct {
	Topic string
	// Key is the producer-assigned dedup key (the event id).
	Key        string
	Body       []byte
	Attributes map[string]string
}

// NewEventMessage wraps the wire encoding of evt for topic.
func NewEventMessage(topic string, evt *event.Event) (Message, error) {
	body, err := event.Marshal(evt)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Topic: topic,
		Key:   evt.ID.String(),
		Body:  body,
		Attributes: map[string]string{
			AttrEventID:   evt.ID.String(),
			AttrEventType: string(evt.Type),
		},
	}, nil
}

// Delivery is one inbound copy of a message.
type Delivery struct {
	// ID is the transport delivery id. It is not stable across redeliveries.
	ID string
	// Handle is the adapter token used to ack or nack this delivery.
	Handle       string
	Body         []byte
	Attributes   map[string]string
	ReceiveCount int
}

// EventType returns the routing attribute, if present.
func (d Delivery) EventType() string {
	return d.Attributes[AttrEventType]
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber pulls deliveries from the bus. A delivery that is neither acked
// nor nacked is redelivered after the transport's visibility window.
type Subscriber interface {
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Nack(ctx context.Context, d Delivery) error
}

// DeadLetter is a message that will not be retried.
type DeadLetter struct {
	MessageID  string
	DeliveryID string
	EventType  string
	Body       []byte
	Attributes map[string]string
	Reason     string
	FailedAt   time.Time
}

type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}
