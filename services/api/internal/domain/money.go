package domain

import "github.com/shopspring/decimal"

// Money columns are NUMERIC(20, 8), position columns NUMERIC(30, 10) and
// order crypto amounts NUMERIC(36, 18).
const (
	MoneyPrecision = 20
	MoneyScale     = 8

	QuantityPrecision = 30
	QuantityScale     = 10

	CryptoPrecision = 36
	CryptoScale     = 18
)

// FitsNumeric reports whether d is stored in a NUMERIC(precision, scale)
// column exactly, without rounding or overflow.
func FitsNumeric(d decimal.Decimal, precision, scale int) bool {
	limit := decimal.New(1, int32(precision-scale))
	return d.Abs().LessThan(limit) && d.Equal(d.Truncate(int32(scale)))
}

// FitsMoney reports whether d is stored in a money column exactly.
func FitsMoney(d decimal.Decimal) bool {
	return FitsNumeric(d, MoneyPrecision, MoneyScale)
}

// FitsQuantity reports whether d is stored in a units or price column exactly.
func FitsQuantity(d decimal.Decimal) bool {
	return FitsNumeric(d, QuantityPrecision, QuantityScale)
}
