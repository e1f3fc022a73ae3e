// Package stream defines how the pipeline finds and reads a sample stream.
package stream

import (
	"context"
	"time"

	"github.com/c360/eegstreams/message"
)

// Resolver is a discovery surface: it lists visible streams and opens inlets
// on them. Transports (simulator, UDP, NATS, CSV replay) implement it.
type Resolver interface {
	// Resolve returns the streams currently visible with the given type, in
	// discovery order. No match is an empty result, not an error.
	Resolve(ctx context.Context, streamType string) ([]message.Descriptor, error)

	// Open connects to a resolved stream.
	Open(ctx context.Context, desc message.Descriptor, opts InletOptions) (Inlet, error)
}

// InletOptions tunes an opened inlet.
type InletOptions struct {
	// MaxBuffered is how much data, in time, the inlet queues for a slow
	// consumer before dropping the oldest samples.
	MaxBuffered time.Duration
}

// Inlet pulls samples from an opened stream.
type Inlet interface {
	// Pull waits up to timeout for data and returns at most maxSamples
	// samples with their source timestamps, oldest first. An empty result
	// is normal. Samples may have any width; callers normalize. An error
	// matching errors.ErrSourceClosed means no more data will arrive.
	Pull(ctx context.Context, maxSamples int, timeout time.Duration) (samples [][]float64, timestamps []float64, err error)

	// Close releases the inlet. Safe to call more than once.
	Close() error
}
