package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type stubPublisher struct {
	calls int
	err   error
}

func (p *stubPublisher) Publish(ctx context.Context, msg Message) error {
	p.calls++
	return p.err
}

func TestNewEventMessage(t *testing.T) {
	evt, err := event.New(event.TypeOrderCreated, event.OrderCreated{OrderID: uuid.New()}, time.Now())
	require.NoError(t, err)

	msg, err := NewEventMessage("orders:events", evt)
	require.NoError(t, err)

	assert.Equal(t, "orders:events", msg.Topic)
	assert.Equal(t, evt.ID.String(), msg.Key)
	assert.Equal(t, evt.ID.String(), msg.Attributes[AttrEventID])
	assert.Equal(t, string(event.TypeOrderCreated), msg.Attributes[AttrEventType])

	decoded, err := event.Unmarshal(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
}

func TestDelivery_EventType(t *testing.T) {
	d := Delivery{Attributes: map[string]string{AttrEventType: "payment.failed.v1"}}
	assert.Equal(t, "payment.failed.v1", d.EventType())
	assert.Equal(t, "", Delivery{}.EventType())
}

func TestBreakerPublisher_PassesThrough(t *testing.T) {
	next := &stubPublisher{}
	p := NewBreakerPublisher(next, DefaultBreakerSettings("test"), nil)

	require.NoError(t, p.Publish(context.Background(), Message{}))
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestBreakerPublisher_TripsOpen(t *testing.T) {
	boom := errors.New("bus unavailable")
	next := &stubPublisher{err: boom}
	var transitions []gobreaker.State
	p := NewBreakerPublisher(next, BreakerSettings{
		Name:         "test",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	}, func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, p.Publish(context.Background(), Message{}), boom)
	}

	err := p.Publish(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, gobreaker.StateOpen, p.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestTracePropagation(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04, 0x05},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	attrs := map[string]string{AttrEventID: "abc"}
	InjectTrace(ctx, attrs)
	assert.Contains(t, attrs, "traceparent")

	extracted := trace.SpanContextFromContext(ExtractTrace(context.Background(), attrs))
	assert.Equal(t, sc.TraceID(), extracted.TraceID())
	assert.Equal(t, sc.SpanID(), extracted.SpanID())
	assert.True(t, extracted.IsRemote())
}

func TestExtractTrace_NoAttributes(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractTrace(ctx, nil))
}
