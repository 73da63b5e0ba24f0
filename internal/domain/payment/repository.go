package payment

import (
	"context"

	"github.com/cassiomorais/orders/internal/domain/uow"
	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create inserts a payment. A second payment for the same order fails
	// with errors.ErrPaymentAlreadyProcessed.
	Create(ctx context.Context, tx uow.Tx, p *Payment) error

	// GetByOrderID retrieves the payment taken for an order. A nil tx reads
	// outside any unit of work.
	GetByOrderID(ctx context.Context, tx uow.Tx, orderID uuid.UUID) (*Payment, error)
}
