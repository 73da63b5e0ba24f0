package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/orders/internal/consumer"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/cassiomorais/orders/internal/relay"
	"github.com/cassiomorais/orders/internal/repository/memory"
	"github.com/cassiomorais/orders/internal/testutil"
	"github.com/cassiomorais/orders/pkg/backoff"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type system struct {
	*stores
	bus      *testutil.Bus
	dlq      *memory.DeadLetterStore
	dedup    *memory.DedupStore
	relay    *relay.Relay
	consumer *consumer.Consumer
	orderSvc *OrderService
}

func newSystem() *system {
	s := newStores()
	bus := testutil.NewBus()
	dedupStore := memory.NewDedupStore(s.db, 14*24*time.Hour)
	dlq := memory.NewDeadLetterStore(s.db)

	r := relay.New(s.outbox, s.db, bus, relay.Config{
		Topic:          "orders.events",
		BatchSize:      10,
		MaxAttempts:    5,
		PollInterval:   time.Hour,
		PublishTimeout: time.Second,
		Backoff:        backoff.Policy{Base: time.Second, Max: time.Minute},
	}, relay.WithClock(s.clock.Now))

	orderSvc := NewOrderService(s.orders, s.payments, s.outbox, s.db, zerolog.Nop(), WithClock(s.clock.Now))
	paymentSvc := NewPaymentService(s.payments, s.outbox,
		payment.LimitAuthorizer{Max: decimal.NewFromInt(100)}, zerolog.Nop(), WithClock(s.clock.Now))

	registry := consumer.NewRegistry()
	RegisterHandlers(registry, orderSvc, paymentSvc)

	return &system{
		stores:   s,
		bus:      bus,
		dlq:      dlq,
		dedup:    dedupStore,
		relay:    r,
		consumer: consumer.New(s.db, dedupStore, registry, bus, dlq, consumer.WithClock(s.clock.Now)),
		orderSvc: orderSvc,
	}
}

// settle alternates relay cycles and consumer drains until nothing moves.
func (s *system) settle(t *testing.T) []consumer.Outcome {
	t.Helper()
	ctx := context.Background()
	var outcomes []consumer.Outcome
	for range 10 {
		res, err := s.relay.RunCycle(ctx)
		require.NoError(t, err)

		deliveries, err := s.bus.Receive(ctx)
		require.NoError(t, err)
		for _, d := range deliveries {
			outcomes = append(outcomes, s.consumer.OnMessage(ctx, d))
		}
		if res.Fetched == 0 && len(deliveries) == 0 {
			return outcomes
		}
	}
	t.Fatal("system did not settle")
	return nil
}

func count(outcomes []consumer.Outcome, want consumer.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o == want {
			n++
		}
	}
	return n
}

func TestFlow_ApprovedOrderCompletes(t *testing.T) {
	s := newSystem()
	ctx := context.Background()

	o, err := s.orderSvc.PlaceOrder(ctx, PlaceOrderRequest{Product: "lamp", Amount: decimal.RequireFromString("42.00")})
	require.NoError(t, err)

	outcomes := s.settle(t)
	assert.Equal(t, 2, count(outcomes, consumer.OutcomeProcessed))

	got, err := s.orderSvc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)

	p, err := s.orderSvc.GetPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, p.Status)

	stats, err := s.outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[outbox.StatusSent])
	assert.Zero(t, stats[outbox.StatusPending])
}

func TestFlow_DeclinedOrderIsCancelled(t *testing.T) {
	s := newSystem()
	ctx := context.Background()

	o, err := s.orderSvc.PlaceOrder(ctx, PlaceOrderRequest{Product: "piano", Amount: decimal.RequireFromString("2500.00")})
	require.NoError(t, err)
	s.settle(t)

	got, err := s.orderSvc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	p, err := s.orderSvc.GetPayment(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, p.Status)
}

func TestFlow_RedeliveredEventsHaveNoEffect(t *testing.T) {
	s := newSystem()
	ctx := context.Background()

	o, err := s.orderSvc.PlaceOrder(ctx, PlaceOrderRequest{Product: "lamp", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	s.settle(t)

	before, err := s.orderSvc.GetOrder(ctx, o.ID)
	require.NoError(t, err)

	published := s.bus.Published()
	require.Len(t, published, 2)
	for i := range published {
		require.NoError(t, s.bus.Redeliver(i))
		require.NoError(t, s.bus.Redeliver(i))
	}

	outcomes := s.settle(t)
	assert.Equal(t, 4, count(outcomes, consumer.OutcomeDuplicate))
	assert.Len(t, outcomes, 4)

	after, err := s.orderSvc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, s.bus.Published(), 2)

	letters, err := s.dlq.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, letters)
}

func TestFlow_BusOutageDelaysButLosesNothing(t *testing.T) {
	s := newSystem()
	ctx := context.Background()

	down := true
	s.bus.PublishFunc = func(context.Context, messaging.Message) error {
		if down {
			return errors.New("bus unreachable")
		}
		return nil
	}

	o, err := s.orderSvc.PlaceOrder(ctx, PlaceOrderRequest{Product: "lamp", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	res, err := s.relay.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	down = false
	s.clock.Advance(time.Second)
	s.settle(t)

	got, err := s.orderSvc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
}
