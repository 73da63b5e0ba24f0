// Package service holds the order and payment use cases and the consumer
// handlers that connect them through the outbox.
package service

import (
	"time"

	"github.com/cassiomorais/orders/internal/consumer"
	"github.com/cassiomorais/orders/internal/domain/event"
)

// Notifier is told when new outbox entries were committed.
type Notifier interface {
	Notify()
}

type Option func(*options)

type options struct {
	now      func() time.Time
	notifier Notifier
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithNotifier wakes the relay after an order was placed.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// RegisterHandlers binds the consumer handlers of both services.
func RegisterHandlers(r *consumer.Registry, orders *OrderService, payments *PaymentService) {
	r.Register(event.TypeOrderCreated, consumer.HandlerFunc(payments.HandleOrderCreated))
	r.Register(event.TypePaymentCompleted, consumer.HandlerFunc(orders.HandlePaymentCompleted))
	r.Register(event.TypePaymentFailed, consumer.HandlerFunc(orders.HandlePaymentFailed))
}
