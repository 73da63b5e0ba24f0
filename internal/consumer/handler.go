package consumer

import (
	"context"
	"sync"

	"github.com/cassiomorais/orders/internal/domain/event"
	"github.com/cassiomorais/orders/internal/domain/uow"
)

// Handler applies the business effect of one event inside tx. Returned
// errors are classified with errors.IsRetryable.
type Handler interface {
	Apply(ctx context.Context, tx uow.Tx, evt *event.Event) error
}

type HandlerFunc func(ctx context.Context, tx uow.Tx, evt *event.Event) error

func (f HandlerFunc) Apply(ctx context.Context, tx uow.Tx, evt *event.Event) error {
	return f(ctx, tx, evt)
}

// Registry routes event types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[event.Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[event.Type]Handler)}
}

// Register binds h to t, replacing any previous handler.
func (r *Registry) Register(t event.Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

func (r *Registry) Lookup(t event.Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types lists the registered event types.
func (r *Registry) Types() []event.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
