package websocket

import "math"

// Range is a closed axis interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// XRange returns the time axis for a window ending at latest.
func XRange(latest, span float64) Range {
	return Range{Min: latest - span, Max: latest}
}

// Axis autoscales one channel's y range.
type Axis struct {
	minSamples int
	current    Range
	valid      bool
}

// NewAxis returns an axis that rescales once it sees more than minSamples
// points.
func NewAxis(minSamples int) *Axis {
	return &Axis{minSamples: minSamples}
}

// Update rescales to values when there are enough of them and returns the
// range in effect. ok is false until a range has been computed.
func (a *Axis) Update(values []float64) (r Range, ok bool) {
	if len(values) <= a.minSamples {
		return a.current, a.valid
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !finite(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if !finite(lo) || !finite(hi) || !finite(span) {
		return a.current, a.valid
	}

	// A flat trace still gets a visible band.
	if span < 1e-6 {
		span = 1.0
	}
	pad := 0.15 * span
	a.current = Range{Min: lo - pad, Max: hi + pad}
	a.valid = true
	return a.current, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Current returns the range in effect.
func (a *Axis) Current() (Range, bool) {
	return a.current, a.valid
}
