// Package message defines the sample records that flow through the pipeline
// and the wire formats used to move them between processes.
package message

import (
	"slices"
	"time"
)

// Sample is one multi-channel measurement.
//
// Timestamp is in the source's clock, in seconds. Index is assigned by the
// acquirer: 0-based, strictly increasing and unique within a session.
// WallTime is the local instant the chunk carrying the sample was received;
// every sample of a chunk shares it. Values has exactly the session's channel
// count entries, NaN marks a missing value.
type Sample struct {
	Index     uint64
	Timestamp float64
	WallTime  time.Time
	Values    []float64
}

// Clone returns a copy that shares no memory with s.
func (s Sample) Clone() Sample {
	s.Values = slices.Clone(s.Values)
	return s
}

// Batch is the unit handed from the acquirer to its sinks: the samples of one
// pull, in arrival order.
type Batch []Sample
