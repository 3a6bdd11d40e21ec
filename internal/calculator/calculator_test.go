package calculator

import (
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floats(values ...float64) []null.Float {
	out := make([]null.Float, len(values))
	for i, v := range values {
		out[i] = null.FloatFrom(v)
	}
	return out
}

func TestPctChange_Series(t *testing.T) {
	got := PctChange(floats(100, 110, 99))
	require.Len(t, got, 3)
	assert.False(t, got[0].Valid, "first row has no prior row")
	require.True(t, got[1].Valid)
	require.True(t, got[2].Valid)
	assert.InDelta(t, 0.10, got[1].Float64, 1e-12)
	assert.InDelta(t, -0.10, got[2].Float64, 1e-12)
}

func TestPctChange_MissingAndZero(t *testing.T) {
	in := []null.Float{
		null.FloatFrom(100),
		{},
		null.FloatFrom(120),
		null.FloatFrom(0),
		null.FloatFrom(5),
	}
	got := PctChange(in)
	assert.False(t, got[1].Valid, "missing current")
	assert.False(t, got[2].Valid, "missing predecessor")
	require.True(t, got[3].Valid)
	assert.InDelta(t, -1.0, got[3].Float64, 1e-12)
	assert.False(t, got[4].Valid, "zero predecessor")
}

func TestPctChange_Empty(t *testing.T) {
	assert.Empty(t, PctChange(nil))
	got := PctChange(floats(42))
	require.Len(t, got, 1)
	assert.False(t, got[0].Valid)
}

func TestMarketCap(t *testing.T) {
	closes := []null.Float{null.FloatFrom(50000), {}, null.FloatFrom(3000)}
	supply := []null.Float{null.FloatFrom(19000000), null.FloatFrom(19000000), {}}

	got, err := MarketCap(closes, supply)
	require.NoError(t, err)
	require.True(t, got[0].Valid)
	assert.InDelta(t, 9.5e11, got[0].Float64, 1e-3)
	assert.False(t, got[1].Valid)
	assert.False(t, got[2].Valid)
}

func TestMultiply_LengthMismatch(t *testing.T) {
	_, err := Multiply(make([]null.Float, 2), make([]null.Float, 3))
	assert.Error(t, err)
}
