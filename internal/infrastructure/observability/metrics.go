package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds all application metrics
type Metrics struct {
	// Order metrics
	OrdersPlaced *prometheus.CounterVec

	// Outbox metrics
	OutboxPublished      *prometheus.CounterVec
	OutboxPublishFailed  *prometheus.CounterVec
	OutboxBreakerSkipped prometheus.Counter
	OutboxEntries        *prometheus.GaugeVec

	// Consumer metrics
	ConsumerMessages           *prometheus.CounterVec
	ConsumerProcessingDuration *prometheus.HistogramVec

	// Dedup metrics
	DedupPurged prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_placed_total",
				Help:      "Total number of order placement attempts by result",
			},
			[]string{"result"},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Total number of outbox entries published by event type",
			},
			[]string{"event_type"},
		),
		OutboxPublishFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_publish_failures_total",
				Help:      "Total number of failed outbox publish attempts by event type",
			},
			[]string{"event_type"},
		),
		OutboxBreakerSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_breaker_skipped_cycles_total",
				Help:      "Relay cycles cut short by an open publisher circuit",
			},
		),
		OutboxEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_entries",
				Help:      "Current number of outbox entries by status",
			},
			[]string{"status"},
		),
		ConsumerMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consumer_messages_total",
				Help:      "Total number of consumed messages by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		ConsumerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consumer_processing_duration_seconds",
				Help:      "Consumer message processing duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"event_type"},
		),
		DedupPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_purged_total",
				Help:      "Total number of expired dedup claims purged",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.OrdersPlaced,
		m.OutboxPublished,
		m.OutboxPublishFailed,
		m.OutboxBreakerSkipped,
		m.OutboxEntries,
		m.ConsumerMessages,
		m.ConsumerProcessingDuration,
		m.DedupPurged,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) RelayPublished(eventType string) {
	m.OutboxPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RelayFailed(eventType string) {
	m.OutboxPublishFailed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RelayBreakerSkipped() {
	m.OutboxBreakerSkipped.Inc()
}

func (m *Metrics) ConsumerOutcome(eventType, outcome string, elapsed time.Duration) {
	m.ConsumerMessages.WithLabelValues(eventType, outcome).Inc()
	m.ConsumerProcessingDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// SetOutboxStats replaces the per-status gauge values.
func (m *Metrics) SetOutboxStats(stats map[string]int64) {
	for status, n := range stats {
		m.OutboxEntries.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) DedupPurgedClaims(n int64) {
	m.DedupPurged.Add(float64(n))
}

// BreakerStateChanged is a gobreaker OnStateChange hook.
func (m *Metrics) BreakerStateChanged(name string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// OrderPlaced counts a placement attempt; result is "success" or "error".
func (m *Metrics) OrderPlaced(result string) {
	m.OrdersPlaced.WithLabelValues(result).Inc()
}
