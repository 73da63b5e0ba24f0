package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/cassiomorais/orders/internal/messaging"
)

// --- Publisher Mock ---

// MockPublisher records published messages.
type MockPublisher struct {
	mu        sync.Mutex
	published []messaging.Message

	PublishFunc func(ctx context.Context, msg messaging.Message) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, msg messaging.Message) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, msg)
	return nil
}

// Published returns a copy of every successfully published message.
func (m *MockPublisher) Published() []messaging.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]messaging.Message, len(m.published))
	copy(out, m.published)
	return out
}

// --- In-memory Bus ---

// Bus is an at-least-once in-memory message bus. Nacked deliveries are put
// back at the tail of the queue; Redeliver hands out an already delivered
// message a second time.
type Bus struct {
	mu      sync.Mutex
	queue   []messaging.Delivery
	seq     int
	acked   map[string]int
	nacked  map[string]int
	history []messaging.Message

	PublishFunc func(ctx context.Context, msg messaging.Message) error
}

func NewBus() *Bus {
	return &Bus{
		acked:  make(map[string]int),
		nacked: make(map[string]int),
	}
}

func (b *Bus) Publish(ctx context.Context, msg messaging.Message) error {
	if b.PublishFunc != nil {
		if err := b.PublishFunc(ctx, msg); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, msg)
	b.enqueueLocked(msg.Body, msg.Attributes, 1)
	return nil
}

func (b *Bus) enqueueLocked(body []byte, attrs map[string]string, receiveCount int) {
	b.seq++
	id := strconv.Itoa(b.seq)
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	b.queue = append(b.queue, messaging.Delivery{
		ID:           id,
		Handle:       id,
		Body:         append([]byte(nil), body...),
		Attributes:   copied,
		ReceiveCount: receiveCount,
	})
}

// Inject queues a raw delivery that was never published through the bus.
func (b *Bus) Inject(body []byte, attrs map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueueLocked(body, attrs, 1)
}

// Redeliver queues a second copy of the i-th published message under a new
// delivery id.
func (b *Bus) Redeliver(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.history) {
		return fmt.Errorf("no published message at %d", i)
	}
	msg := b.history[i]
	b.enqueueLocked(msg.Body, msg.Attributes, 2)
	return nil
}

func (b *Bus) Receive(ctx context.Context) ([]messaging.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out, nil
}

func (b *Bus) Ack(_ context.Context, d messaging.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked[d.ID]++
	return nil
}

func (b *Bus) Nack(_ context.Context, d messaging.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacked[d.ID]++
	b.enqueueLocked(d.Body, d.Attributes, d.ReceiveCount+1)
	return nil
}

// Published returns every message handed to Publish.
func (b *Bus) Published() []messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]messaging.Message, len(b.history))
	copy(out, b.history)
	return out
}

// Pending returns the number of queued deliveries.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bus) AckCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.acked {
		n += c
	}
	return n
}

func (b *Bus) NackCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.nacked {
		n += c
	}
	return n
}

// --- Dead Letter Sink Mock ---

type MockDeadLetterSink struct {
	mu      sync.Mutex
	letters []messaging.DeadLetter

	DeadLetterFunc func(ctx context.Context, dl messaging.DeadLetter) error
}

func NewMockDeadLetterSink() *MockDeadLetterSink {
	return &MockDeadLetterSink{}
}

func (m *MockDeadLetterSink) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	if m.DeadLetterFunc != nil {
		if err := m.DeadLetterFunc(ctx, dl); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, dl)
	return nil
}

func (m *MockDeadLetterSink) Letters() []messaging.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]messaging.DeadLetter, len(m.letters))
	copy(out, m.letters)
	return out
}

// --- Locker Mock ---

type MockLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int

	AcquireFunc func(ctx context.Context) (bool, error)
}

func (m *MockLocker) Acquire(ctx context.Context) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return false, nil
	}
	m.held = true
	m.acquired++
	return true, nil
}

func (m *MockLocker) Release(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
	m.released++
	return nil
}

// Counts returns how many times the lock was acquired and released.
func (m *MockLocker) Counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}
