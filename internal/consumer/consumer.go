// Package consumer applies bus deliveries exactly once in effect.
//
// Each delivery is decoded, claimed in the dedup store and applied by its
// handler inside one unit of work. The claim commits together with the
// business effect, so a redelivered event finds its claim and is acknowledged
// without being applied again. A delivery is acknowledged only after its
// outcome is durable: the transaction committed, the duplicate was detected,
// or the message was written to the dead-letter sink.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/orders/internal/domain/dedup"
	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is the terminal state of one delivery.
type Outcome int

const (
	// OutcomeProcessed: applied, committed and acknowledged.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate: already applied earlier, acknowledged without effect.
	OutcomeDuplicate
	// OutcomeRetry: rolled back and nacked for redelivery.
	OutcomeRetry
	// OutcomeDeadLettered: written to the dead-letter sink and acknowledged.
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

// Metrics receives consumer outcomes.
type Metrics interface {
	ConsumerOutcome(eventType, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ConsumerOutcome(string, string, time.Duration) {}

type Option func(*Consumer)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(c *Consumer) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

// settleTimeout bounds the ack or nack that ends a delivery.
const settleTimeout = 5 * time.Second

// WithProcessingTimeout bounds one delivery: the unit of work and, when the
// message is rejected, the dead-letter write.
func WithProcessingTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

type Consumer struct {
	txm      uow.Manager
	dedup    dedup.Store
	registry *Registry
	sub      messaging.Subscriber
	dlq      messaging.DeadLetterSink

	logger  zerolog.Logger
	metrics Metrics
	now     func() time.Time
	timeout time.Duration
	tracer  trace.Tracer
}

func New(
	txm uow.Manager,
	dedupStore dedup.Store,
	registry *Registry,
	sub messaging.Subscriber,
	dlq messaging.DeadLetterSink,
	opts ...Option,
) *Consumer {
	c := &Consumer{
		txm:      txm,
		dedup:    dedupStore,
		registry: registry,
		sub:      sub,
		dlq:      dlq,
		logger:   zerolog.Nop(),
		metrics:  nopMetrics{},
		now:      time.Now,
		timeout:  30 * time.Second,
		tracer:   otel.Tracer("github.com/cassiomorais/orders/internal/consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnMessage drives one delivery to a terminal outcome and acks or nacks it.
func (c *Consumer) OnMessage(ctx context.Context, d messaging.Delivery) Outcome {
	start := c.now()
	ctx = messaging.ExtractTrace(ctx, d.Attributes)
	ctx, span := c.tracer.Start(ctx, "outbox.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.delivery_id", d.ID),
			attribute.Int("messaging.receive_count", d.ReceiveCount),
		),
	)
	defer span.End()

	log := c.logger.With().Str("delivery_id", d.ID).Logger()
	eventType := d.EventType()

	evt, decodeErr := event.Unmarshal(d.Body)
	if decodeErr == nil {
		eventType = string(evt.Type)
		log = log.With().Str("event_id", evt.ID.String()).Str("event_type", eventType).Logger()
	}

	procCtx, cancel := context.WithTimeout(ctx, c.timeout)
	outcome, cause := c.process(procCtx, d, evt, decodeErr)
	cancel()
	if outcome == OutcomeDuplicate {
		log.Debug().Msg("Duplicate message skipped")
	}
	span.SetAttributes(attribute.String("event.type", eventType), attribute.String("consumer.outcome", outcome.String()))
	if cause != nil {
		span.RecordError(cause)
	}

	settleCtx, cancelSettle := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancelSettle()

	switch outcome {
	case OutcomeRetry:
		span.SetStatus(codes.Error, "retry")
		log.Warn().Err(cause).Int("receive_count", d.ReceiveCount).Msg("Message processing failed, will be redelivered")
		if err := c.sub.Nack(settleCtx, d); err != nil {
			log.Error().Err(err).Msg("Failed to nack message")
		}
	default:
		if outcome == OutcomeDeadLettered {
			log.Warn().Err(cause).Msg("Message dead-lettered")
		}
		if err := c.sub.Ack(settleCtx, d); err != nil {
			// The outcome is durable; a redelivery resolves as a duplicate or
			// as another dead letter.
			log.Error().Err(err).Msg("Failed to ack message")
		}
	}

	c.metrics.ConsumerOutcome(eventType, outcome.String(), c.now().Sub(start))
	return outcome
}

func (c *Consumer) process(ctx context.Context, d messaging.Delivery, evt *event.Event, decodeErr error) (Outcome, error) {
	if decodeErr != nil {
		return c.deadLetter(ctx, d, d.Attributes[messaging.AttrEventID], d.EventType(), decodeErr)
	}

	h, ok := c.registry.Lookup(evt.Type)
	if !ok {
		err := fmt.Errorf("%w: %s", domainErrors.ErrUnknownEventType, evt.Type)
		return c.deadLetter(ctx, d, evt.ID.String(), string(evt.Type), err)
	}

	outcome, err := c.apply(ctx, h, evt)
	if outcome == OutcomeDeadLettered {
		return c.deadLetter(ctx, d, evt.ID.String(), string(evt.Type), err)
	}
	return outcome, err
}

// apply claims evt and runs h in one unit of work. It returns
// OutcomeDeadLettered for non-retryable handler errors; the caller routes
// those to the sink.
func (c *Consumer) apply(ctx context.Context, h Handler, evt *event.Event) (Outcome, error) {
	tx, err := c.txm.Begin(ctx)
	if err != nil {
		return OutcomeRetry, err
	}

	claimed, err := c.dedup.TryClaim(ctx, tx, evt.ID.String())
	if err != nil {
		c.rollback(ctx, tx)
		return OutcomeRetry, fmt.Errorf("claim message: %w", err)
	}

	if !claimed {
		if err := tx.Commit(ctx); err != nil {
			return OutcomeRetry, err
		}
		return OutcomeDuplicate, nil
	}

	if err := h.Apply(ctx, tx, evt); err != nil {
		c.rollback(ctx, tx)
		if domainErrors.IsRetryable(err) {
			return OutcomeRetry, fmt.Errorf("apply %s: %w", evt.Type, err)
		}
		return OutcomeDeadLettered, fmt.Errorf("apply %s: %w", evt.Type, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeRetry, err
	}
	return OutcomeProcessed, nil
}

func (c *Consumer) rollback(ctx context.Context, tx uow.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to roll back consumer transaction")
	}
}

// deadLetter hands d to the sink. A sink failure turns the outcome into a
// retry so the message is not acknowledged without a record.
func (c *Consumer) deadLetter(ctx context.Context, d messaging.Delivery, messageID, eventType string, cause error) (Outcome, error) {
	if messageID == "" {
		messageID = d.ID
	}

	dl := messaging.DeadLetter{
		MessageID:  messageID,
		DeliveryID: d.ID,
		EventType:  eventType,
		Body:       d.Body,
		Attributes: d.Attributes,
		Reason:     cause.Error(),
		FailedAt:   c.now(),
	}
	if err := c.dlq.DeadLetter(ctx, dl); err != nil {
		return OutcomeRetry, fmt.Errorf("dead-letter after %v: %w", cause, err)
	}
	return OutcomeDeadLettered, cause
}
