package dataset

import (
	"math"
	"strconv"
	"strings"

	"CryptoAnalysis/internal/model"

	"github.com/guregu/null/v6"
)

// ToNumeric converts the named columns of t to numeric in place. Cells that
// do not parse as a number become missing; nothing fails. Names that are not
// columns of t are skipped and returned.
func ToNumeric(t *model.Table, names ...string) (skipped []string) {
	for _, name := range names {
		c := t.Column(name)
		if c == nil {
			skipped = append(skipped, name)
			continue
		}
		CoerceColumn(c)
	}
	return skipped
}

// CoerceColumn turns a text column into a numeric one.
func CoerceColumn(c *model.Column) {
	if c.Kind == model.KindNumeric {
		return
	}
	num := make([]null.Float, len(c.Text))
	for i, cell := range c.Text {
		if cell.Valid {
			num[i] = ParseNumber(cell.String)
		}
	}
	c.Kind = model.KindNumeric
	c.Num = num
	c.Text = nil
}

// ParseNumber parses s as a float, returning missing when it cannot.
func ParseNumber(s string) null.Float {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}
