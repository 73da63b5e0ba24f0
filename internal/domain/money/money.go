// Package money holds the amount rules shared by orders and payments.
package money

import (
	"github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits an amount may carry.
const Scale = 2

// MaxAmount is the largest amount a NUMERIC(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ValidateAmount rejects amounts that are not positive, carry more than
// Scale fractional digits or exceed MaxAmount.
func ValidateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return errors.NewDomainError("invalid_amount", "amount must be positive", errors.ErrInvalidAmount)
	case !amount.Equal(amount.Truncate(Scale)):
		return errors.NewDomainError("invalid_amount", "amount must have at most 2 decimal places", errors.ErrInvalidAmount)
	case amount.GreaterThan(MaxAmount):
		return errors.NewDomainError("invalid_amount", "amount must not exceed "+MaxAmount.StringFixed(Scale), errors.ErrInvalidAmount)
	}
	return nil
}
