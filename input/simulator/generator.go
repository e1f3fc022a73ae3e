package simulator

import (
	"math"
	"math/rand/v2"
)

// band is one sinusoidal component of a synthetic channel.
type band struct {
	freq  float64
	scale float64
}

// Muse-like rhythm mix: alpha dominates, with some theta and beta.
var bands = []band{
	{freq: 10, scale: 1.0},
	{freq: 6, scale: 0.4},
	{freq: 20, scale: 0.2},
}

// Generator produces deterministic synthetic EEG samples. It is not safe
// for concurrent use.
type Generator struct {
	channels  int
	rate      float64
	amplitude float64
	noise     float64
	rng       *rand.Rand
	phases    []float64
	n         uint64
}

// NewGenerator creates a generator. Channels get distinct phase offsets so
// traces are visually separable.
func NewGenerator(channels int, rate, amplitude, noise float64, seed uint64) *Generator {
	g := &Generator{
		channels:  channels,
		rate:      rate,
		amplitude: amplitude,
		noise:     noise,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		phases:    make([]float64, channels),
	}
	for i := range g.phases {
		g.phases[i] = float64(i) * math.Pi / 4
	}
	return g
}

// Next returns the next sample. Timestamps are offsets in seconds from the
// first sample at the nominal rate.
func (g *Generator) Next() (ts float64, values []float64) {
	ts = float64(g.n) / g.rate
	g.n++

	values = make([]float64, g.channels)
	for ch := range values {
		var v float64
		for _, b := range bands {
			v += b.scale * math.Sin(2*math.Pi*b.freq*ts+g.phases[ch])
		}
		values[ch] = g.amplitude*v + g.noise*g.rng.NormFloat64()
	}
	return ts, values
}

// Chunk returns the next n samples.
func (g *Generator) Chunk(n int) (timestamps []float64, samples [][]float64) {
	timestamps = make([]float64, n)
	samples = make([][]float64, n)
	for i := range n {
		timestamps[i], samples[i] = g.Next()
	}
	return timestamps, samples
}

// Produced returns how many samples have been generated.
func (g *Generator) Produced() uint64 {
	return g.n
}
