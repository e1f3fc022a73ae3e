package testutil

import (
	"time"

	"github.com/c360/eegstreams/message"
)

// MuseChannels is the channel layout of a four channel Muse headband.
var MuseChannels = []string{"TP9", "AF7", "AF8", "TP10"}

// MuseDescriptor returns a descriptor for a Muse-like EEG stream.
func MuseDescriptor(sourceID string) message.Descriptor {
	return message.Descriptor{
		SourceID:     sourceID,
		Name:         "FakeMuse",
		Type:         "EEG",
		ChannelCount: len(MuseChannels),
		NominalRate:  256,
		ChannelNames: append([]string(nil), MuseChannels...),
		Hostname:     "localhost",
		CreatedAt:    time.Now(),
	}
}

// Ramp returns n samples of width channels with timestamps start, start+step,
// ... Channel c of sample i holds i*10+c.
func Ramp(n, width int, start, step float64) (samples [][]float64, timestamps []float64) {
	samples = make([][]float64, n)
	timestamps = make([]float64, n)
	for i := range n {
		row := make([]float64, width)
		for c := range row {
			row[c] = float64(i*10 + c)
		}
		samples[i] = row
		timestamps[i] = start + float64(i)*step
	}
	return samples, timestamps
}

// Batch builds a batch with the given timestamps and indices from 0.
func Batch(width int, timestamps ...float64) message.Batch {
	b := make(message.Batch, len(timestamps))
	for i, ts := range timestamps {
		values := make([]float64, width)
		for c := range values {
			values[c] = ts
		}
		b[i] = message.Sample{Index: uint64(i), Timestamp: ts, WallTime: time.Now(), Values: values}
	}
	return b
}
