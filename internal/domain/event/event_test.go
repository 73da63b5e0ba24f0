package event

import (
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	orderID := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	evt, err := New(TypeOrderCreated, OrderCreated{
		OrderID: orderID,
		Product: "book",
		Amount:  decimal.RequireFromString("19.90"),
	}, now)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, evt.ID)
	assert.Equal(t, uuid.Version(7), evt.ID.Version())
	assert.Equal(t, TypeOrderCreated, evt.Type)
	assert.Equal(t, now, evt.OccurredAt)
	assert.JSONEq(t, `{"order_id":"`+orderID.String()+`","product":"book","amount":"19.9"}`, string(evt.Payload))
}

func TestNew_MissingType(t *testing.T) {
	_, err := New("", OrderCreated{}, time.Now())
	assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

func TestNew_IDsAreTimeOrdered(t *testing.T) {
	first, err := New(TypeOrderCreated, OrderCreated{}, time.Now())
	require.NoError(t, err)
	second, err := New(TypeOrderCreated, OrderCreated{}, time.Now())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.ID.String(), second.ID.String())
}

func TestMarshalUnmarshal(t *testing.T) {
	evt, err := New(TypePaymentFailed, PaymentFailed{
		PaymentID: uuid.New(),
		OrderID:   uuid.New(),
		Amount:    decimal.NewFromInt(1500),
		Reason:    "amount exceeds limit",
	}, time.Now())
	require.NoError(t, err)

	data, err := Marshal(evt)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, evt.Type, decoded.Type)
	assert.True(t, evt.OccurredAt.Equal(decoded.OccurredAt))

	var payload PaymentFailed
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "amount exceeds limit", payload.Reason)
	assert.True(t, payload.Amount.Equal(decimal.NewFromInt(1500)))
}

func TestUnmarshal_Malformed(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `not-json`},
		{"empty object", `{}`},
		{"missing type", `{"id":"` + id + `","occurred_at":"2026-01-01T00:00:00Z","payload":{}}`},
		{"missing occurred_at", `{"id":"` + id + `","type":"order.created.v1","payload":{}}`},
		{"null payload", `{"id":"` + id + `","type":"order.created.v1","occurred_at":"2026-01-01T00:00:00Z","payload":null}`},
		{"bad id", `{"id":"nope","type":"order.created.v1","occurred_at":"2026-01-01T00:00:00Z","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)

			var malformed *domainErrors.MalformedEventError
			assert.ErrorAs(t, err, &malformed)
		})
	}
}

func TestDecodePayload_Malformed(t *testing.T) {
	evt := &Event{ID: uuid.New(), Type: TypeOrderCreated, Payload: []byte(`"just a string"`)}

	var payload OrderCreated
	err := evt.DecodePayload(&payload)
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
}
