// Package relay moves committed outbox entries onto the message bus.
//
// A single loop polls the outbox on a fixed interval, or earlier when woken
// with Notify, and publishes every eligible entry in creation order. An entry
// is marked SENT only after the bus confirmed the publish, so a crash at any
// point leads to a republish rather than a lost event.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/cassiomorais/orders/pkg/backoff"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Topic          string
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	Backoff        backoff.Policy
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = outbox.DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.Backoff.Base <= 0 {
		c.Backoff = backoff.Policy{Base: time.Second, Max: time.Minute}
	}
	return c
}

// Locker grants leadership of a relay cycle across instances.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Metrics receives relay outcomes.
type Metrics interface {
	RelayPublished(eventType string)
	RelayFailed(eventType string)
	RelayBreakerSkipped()
}

type nopMetrics struct{}

func (nopMetrics) RelayPublished(string) {}
func (nopMetrics) RelayFailed(string)    {}
func (nopMetrics) RelayBreakerSkipped()  {}

type Option func(*Relay)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// WithLocker makes each cycle run only while holding l.
func WithLocker(l Locker) Option {
	return func(r *Relay) { r.locker = l }
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// CycleResult summarizes one relay cycle.
type CycleResult struct {
	Fetched   int
	Published int
	Failed    int
	// BreakerOpen is set when the cycle stopped early on an open circuit.
	BreakerOpen bool
	// Skipped is set when another instance held the relay lock.
	Skipped bool
}

type Relay struct {
	store     outbox.Store
	txm       uow.Manager
	publisher messaging.Publisher
	cfg       Config

	logger  zerolog.Logger
	now     func() time.Time
	locker  Locker
	metrics Metrics
	tracer  trace.Tracer
	wake    chan struct{}
}

func New(store outbox.Store, txm uow.Manager, publisher messaging.Publisher, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		txm:       txm,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    zerolog.Nop(),
		now:       time.Now,
		metrics:   nopMetrics{},
		tracer:    otel.Tracer("github.com/cassiomorais/orders/internal/relay"),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify asks the running loop to start a cycle without waiting for the next
// tick. It never blocks; wakeups that arrive while one is pending coalesce.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. A cycle already in progress when ctx is
// cancelled runs to completion before Run returns.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info().
		Str("topic", r.cfg.Topic).
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("Outbox relay started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}

		res, err := r.RunCycle(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.Error().Err(err).Msg("Outbox relay cycle failed")
			continue
		}
		if res.Fetched > 0 {
			r.logger.Debug().
				Int("fetched", res.Fetched).
				Int("published", res.Published).
				Int("failed", res.Failed).
				Bool("breaker_open", res.BreakerOpen).
				Msg("Outbox relay cycle finished")
		}
	}
}

// RunCycle publishes one batch of eligible entries.
func (r *Relay) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	if r.locker != nil {
		acquired, err := r.locker.Acquire(ctx)
		if err != nil {
			return res, fmt.Errorf("acquire relay lock: %w", err)
		}
		if !acquired {
			res.Skipped = true
			return res, nil
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to release relay lock")
			}
		}()
	}

	entries, err := r.store.FetchPending(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return res, fmt.Errorf("fetch pending outbox entries: %w", err)
	}
	res.Fetched = len(entries)

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		pubErr := r.publish(ctx, entry)
		if errors.Is(pubErr, messaging.ErrCircuitOpen) {
			res.BreakerOpen = true
			r.metrics.RelayBreakerSkipped()
			r.logger.Warn().Int64("entry_id", entry.ID).Msg("Publisher circuit open, deferring remaining entries")
			break
		}

		if pubErr != nil {
			res.Failed++
			r.metrics.RelayFailed(string(entry.EventType))
			if err := r.markFailed(ctx, entry, pubErr); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		res.Published++
		r.metrics.RelayPublished(string(entry.EventType))
		if err := r.markSent(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (r *Relay) publish(ctx context.Context, entry *outbox.Entry) error {
	ctx, span := r.tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination", r.cfg.Topic),
			attribute.String("event.id", entry.EventID.String()),
			attribute.String("event.type", string(entry.EventType)),
			attribute.Int64("outbox.entry_id", entry.ID),
		),
	)
	defer span.End()

	msg, err := messaging.NewEventMessage(r.cfg.Topic, entry.Event())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode event")
		return &domainErrors.PublishError{EventID: entry.EventID, Err: err}
	}
	messaging.InjectTrace(ctx, msg.Attributes)

	pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()

	if err := r.publisher.Publish(pubCtx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		return &domainErrors.PublishError{EventID: entry.EventID, Err: err}
	}
	return nil
}

func (r *Relay) markSent(ctx context.Context, entry *outbox.Entry) error {
	err := uow.Run(ctx, r.txm, func(ctx context.Context, tx uow.Tx) error {
		return r.store.MarkSent(ctx, tx, entry.ID)
	})
	if err != nil {
		// The event is already on the bus; it will be published again.
		r.logger.Error().Err(err).
			Int64("entry_id", entry.ID).
			Str("event_id", entry.EventID.String()).
			Msg("Failed to mark outbox entry as sent")
		return fmt.Errorf("mark entry %d sent: %w", entry.ID, err)
	}
	return nil
}

func (r *Relay) markFailed(ctx context.Context, entry *outbox.Entry, cause error) error {
	attempt := entry.Attempts + 1
	next := r.now().Add(r.cfg.Backoff.Delay(attempt))

	r.logger.Warn().Err(cause).
		Int64("entry_id", entry.ID).
		Str("event_id", entry.EventID.String()).
		Str("event_type", string(entry.EventType)).
		Int("attempt", attempt).
		Time("next_attempt_at", next).
		Msg("Failed to publish outbox entry")

	err := uow.Run(ctx, r.txm, func(ctx context.Context, tx uow.Tx) error {
		return r.store.MarkFailed(ctx, tx, entry.ID, cause.Error(), next)
	})
	if err != nil {
		return fmt.Errorf("mark entry %d failed: %w", entry.ID, err)
	}
	return nil
}
