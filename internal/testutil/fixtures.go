package testutil

import (
	"sync"
	"time"

	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func NewTestOrderCreatedEvent(orderID uuid.UUID, amount string) *event.Event {
	evt, err := event.New(event.TypeOrderCreated, event.OrderCreated{
		OrderID: orderID,
		Product: "widget",
		Amount:  decimal.RequireFromString(amount),
	}, time.Now())
	if err != nil {
		panic(err)
	}
	return evt
}
