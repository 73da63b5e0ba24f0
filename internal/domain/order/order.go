package order

import (
	"strings"
	"time"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the order status in the state machine
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Order represents an order entity
type Order struct {
	ID        uuid.UUID
	Product   string
	Amount    decimal.Decimal
	Status    Status
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder creates a new order in CREATED status
func NewOrder(product string, amount decimal.Decimal, now time.Time) (*Order, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, errors.NewValidationError("product", "is required")
	}
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}

	return &Order{
		ID:        uuid.New(),
		Product:   product,
		Amount:    amount,
		Status:    StatusCreated,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransitionTo checks if the order can transition to the given status
func (o *Order) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusCreated: {
			StatusCompleted,
			StatusCancelled,
		},
		StatusCompleted: {}, // Terminal state
		StatusCancelled: {}, // Terminal state
	}

	for _, allowed := range transitions[o.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to newStatus and bumps its version.
// It reports false without error when the order is already in newStatus.
func (o *Order) TransitionTo(newStatus Status, now time.Time) (bool, error) {
	if o.Status == newStatus {
		return false, nil
	}
	if !o.CanTransitionTo(newStatus) {
		return false, errors.NewDomainError(
			"invalid_transition",
			"cannot transition order from "+string(o.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	o.Status = newStatus
	o.Version++
	o.UpdatedAt = now
	return true, nil
}

// Complete marks the order as paid.
func (o *Order) Complete(now time.Time) (bool, error) {
	return o.TransitionTo(StatusCompleted, now)
}

// Cancel marks the order as cancelled after a failed payment.
func (o *Order) Cancel(now time.Time) (bool, error) {
	return o.TransitionTo(StatusCancelled, now)
}
