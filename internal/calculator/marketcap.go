package calculator

import (
	"errors"

	"github.com/guregu/null/v6"
)

// Multiply returns the elementwise product of a and b. A missing operand
// makes the product missing.
func Multiply(a, b []null.Float) ([]null.Float, error) {
	if len(a) != len(b) {
		return nil, errors.New("operands differ in length")
	}
	out := make([]null.Float, len(a))
	for i := range a {
		if a[i].Valid && b[i].Valid {
			out[i] = null.FloatFrom(a[i].Float64 * b[i].Float64)
		}
	}
	return out, nil
}

// MarketCap computes close price times circulating supply per row.
func MarketCap(closes, supply []null.Float) ([]null.Float, error) {
	return Multiply(closes, supply)
}
