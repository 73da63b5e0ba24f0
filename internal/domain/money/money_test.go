package money_test

import (
	"testing"

	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"cents", "10.05", false},
		{"whole", "10", false},
		{"trailing zeros", "10.500", false},
		{"smallest", "0.01", false},
		{"largest", "9999999999.99", false},
		{"zero", "0", true},
		{"negative", "-1.00", true},
		{"sub cent", "10.005", true},
		{"too large", "10000000000.00", true},
		{"far too large", "99999999999.99", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := money.ValidateAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidAmount)
				return
			}
			assert.NoError(t, err)
		})
	}
}
