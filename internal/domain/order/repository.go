package order

import (
	"context"

	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/google/uuid"
)

// Repository defines the interface for order persistence.
// A nil tx runs the call outside any unit of work.
type Repository interface {
	// Create inserts a new order
	Create(ctx context.Context, tx uow.Tx, o *Order) error

	// GetByID retrieves an order by ID
	GetByID(ctx context.Context, tx uow.Tx, id uuid.UUID) (*Order, error)

	// Update persists o if its stored version is o.Version-1
	Update(ctx context.Context, tx uow.Tx, o *Order) error
}
