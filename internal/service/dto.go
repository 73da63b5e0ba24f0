package service

import (
	"github.com/shopspring/decimal"
)

// Controllers convert their HTTP DTOs to this type.
type PlaceOrderRequest struct {
	Product string
	Amount  decimal.Decimal
}
