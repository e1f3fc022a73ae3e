package websocket

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * scale
	}
	return out
}

func TestAxisNeedsEnoughSamples(t *testing.T) {
	a := NewAxis(10)
	_, ok := a.Update(ramp(10, 1))
	assert.False(t, ok)

	r, ok := a.Update(ramp(11, 1))
	require.True(t, ok)
	assert.InDelta(t, -1.5, r.Min, 1e-9)
	assert.InDelta(t, 11.5, r.Max, 1e-9)
}

func TestAxisKeepsPreviousRange(t *testing.T) {
	a := NewAxis(10)
	first, ok := a.Update(ramp(20, 1))
	require.True(t, ok)

	r, ok := a.Update([]float64{1000})
	assert.True(t, ok)
	assert.Equal(t, first, r)

	nan := make([]float64, 20)
	for i := range nan {
		nan[i] = math.NaN()
	}
	r, _ = a.Update(nan)
	assert.Equal(t, first, r)
}

func TestAxisFlatTraceSpan(t *testing.T) {
	a := NewAxis(2)
	r, ok := a.Update([]float64{5, 5, 5, math.NaN()})
	require.True(t, ok)
	assert.InDelta(t, 5-0.15, r.Min, 1e-9)
	assert.InDelta(t, 5+0.15, r.Max, 1e-9)
}

func TestAxisKeepsSmallSpan(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100 + float64(i)*0.01
	}
	a := NewAxis(10)
	r, ok := a.Update(values)
	require.True(t, ok)
	assert.InDelta(t, 99.9715, r.Min, 1e-9)
	assert.InDelta(t, 100.2185, r.Max, 1e-9)
}

func TestAxisIgnoresInfinities(t *testing.T) {
	a := NewAxis(10)
	values := ramp(20, 1)
	values[3] = math.Inf(1)
	values[7] = math.Inf(-1)

	r, ok := a.Update(values)
	require.True(t, ok)
	assert.InDelta(t, -2.85, r.Min, 1e-9)
	assert.InDelta(t, 21.85, r.Max, 1e-9)

	only := make([]float64, 20)
	for i := range only {
		only[i] = math.Inf(1)
	}
	kept, ok := a.Update(only)
	assert.True(t, ok)
	assert.Equal(t, r, kept)
}

func TestXRange(t *testing.T) {
	assert.Equal(t, Range{Min: 10, Max: 20}, XRange(20, 10))
}
