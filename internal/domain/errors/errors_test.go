package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "order_failed",
				Message: "order processing failed",
				Err:     errors.New("database timeout"),
			},
			expected: "order processing failed: database timeout",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot complete order in current state",
				Err:     nil,
			},
			expected: "cannot complete order in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{
		Code:    "test",
		Message: "test message",
		Err:     originalErr,
	}

	unwrapped := domainErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestNewDomainError(t *testing.T) {
	originalErr := errors.New("underlying error")
	err := NewDomainError("test_code", "test message", originalErr)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, originalErr, err.Err)
}

func TestNewDomainError_NilWrappedError(t *testing.T) {
	err := NewDomainError("test_code", "test message", nil)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Err)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "amount",
		Message: "must be greater than zero",
	}

	expected := "validation failed for field email: must be greater than zero"
	assert.Equal(t, expected, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("product", "cannot be empty")

	assert.NotNil(t, err)
	assert.Equal(t, "product", err.Field)
	assert.Equal(t, "cannot be empty", err.Message)
}

func TestValidationError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("place order: %w", NewValidationError("product", "required"))

	assert.ErrorIs(t, err, ErrValidationFailed)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "product", ve.Field)
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPersistenceError("append outbox entry", cause)

	assert.Equal(t, "append outbox entry: connection reset", err.Error())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)

	wrapped := NewPersistenceError("append outbox entry", ErrTxNotActive)
	assert.ErrorIs(t, wrapped, ErrTxNotActive)
	assert.ErrorIs(t, wrapped, ErrPersistence)
}

func TestPublishError(t *testing.T) {
	id := uuid.New()
	err := &PublishError{EventID: id, Err: errors.New("timeout")}

	assert.Contains(t, err.Error(), id.String())
	assert.ErrorIs(t, err, ErrPublishFailed)
}

func TestMalformedEventError(t *testing.T) {
	err := NewMalformedEventError("missing id", nil)
	assert.Equal(t, "malformed event: missing id", err.Error())
	assert.ErrorIs(t, err, ErrMalformedEvent)

	cause := errors.New("unexpected end of JSON input")
	err = NewMalformedEventError("decode envelope", cause)
	assert.Equal(t, "malformed event: decode envelope: unexpected end of JSON input", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestNonRetryable(t *testing.T) {
	assert.Nil(t, NonRetryable(nil))

	cause := errors.New("card declined")
	err := NonRetryable(cause)
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), true},
		{"persistence", NewPersistenceError("commit", errors.New("boom")), true},
		{"optimistic lock", ErrOptimisticLockFailed, true},
		{"explicit non-retryable", NonRetryable(errors.New("boom")), false},
		{"malformed", NewMalformedEventError("bad", nil), false},
		{"unknown type", fmt.Errorf("dispatch: %w", ErrUnknownEventType), false},
		{"validation", NewValidationError("amount", "bad"), false},
		{"invalid transition", NewDomainError("invalid_transition", "no", ErrInvalidStateTransition), false},
		{"order not found", ErrOrderNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}
