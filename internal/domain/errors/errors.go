package errors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOptimisticLockFailed   = errors.New("optimistic lock conflict")

	// Payment errors
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")

	// Persistence errors
	ErrPersistence         = errors.New("persistence failure")
	ErrTxNotActive         = errors.New("transaction is not active")
	ErrEventIDConflict     = errors.New("event id already exists")
	ErrOutboxEntryNotFound = errors.New("outbox entry not found")

	// Messaging errors
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrPublishFailed    = errors.New("publish failed")
	ErrNonRetryable     = errors.New("non-retryable failure")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// PersistenceError is a transaction or storage failure. It is retryable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new persistence error for the given operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// PublishError is a transient failure to hand an event to the message bus.
type PublishError struct {
	EventID uuid.UUID
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish event %s: %v", e.EventID, e.Err)
}

func (e *PublishError) Is(target error) bool {
	return target == ErrPublishFailed
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// MalformedEventError reports an inbound message that cannot be decoded
// into an event record.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// NewMalformedEventError creates a new malformed event error
func NewMalformedEventError(reason string, err error) *MalformedEventError {
	return &MalformedEventError{Reason: reason, Err: err}
}

// NonRetryable marks err as a permanent failure for message processing.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNonRetryable, err)
}

var permanent = []error{
	ErrNonRetryable,
	ErrMalformedEvent,
	ErrUnknownEventType,
	ErrValidationFailed,
	ErrInvalidInput,
	ErrInvalidAmount,
	ErrInvalidStateTransition,
	ErrOrderNotFound,
	ErrPaymentNotFound,
}

// IsRetryable reports whether processing that failed with err may succeed on
// redelivery. Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, p := range permanent {
		if errors.Is(err, p) {
			return false
		}
	}
	return true
}
