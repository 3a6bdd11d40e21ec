package calculator

import (
	"github.com/guregu/null/v6"
)

// PctChange returns the row-over-row fractional change of values.
// The first element has no prior row and is missing. A row is missing when
// either it or its predecessor is missing, or when the predecessor is zero.
// Gaps are not bridged by carrying the last value forward, and a zero
// predecessor gives missing rather than inf.
func PctChange(values []null.Float) []null.Float {
	out := make([]null.Float, len(values))
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if !prev.Valid || !cur.Valid || prev.Float64 == 0 {
			continue
		}
		out[i] = null.FloatFrom(cur.Float64/prev.Float64 - 1)
	}
	return out
}
