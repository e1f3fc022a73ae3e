package stream

import (
	"fmt"
	"slices"

	"github.com/c360/eegstreams/message"
)

// Naming policies for channel labels.
const (
	// NamesAuto prefers stream metadata, then configured names whose count
	// matches, then generic labels.
	NamesAuto = "auto"
	// NamesGeneric always labels channels ch0..chN-1.
	NamesGeneric = "generic"
)

// ChannelSet is the immutable channel layout of a session, fixed at connect.
type ChannelSet struct {
	names []string
	rate  float64
}

// NewChannelSet resolves channel labels for a stream.
func NewChannelSet(desc message.Descriptor, configured []string, policy string) ChannelSet {
	n := desc.ChannelCount
	cs := ChannelSet{rate: desc.NominalRate}

	switch {
	case policy == NamesGeneric:
		cs.names = GenericNames(n)
	case usableNames(desc.ChannelNames, n):
		cs.names = slices.Clone(desc.ChannelNames)
	case usableNames(configured, n):
		cs.names = slices.Clone(configured)
	default:
		cs.names = GenericNames(n)
	}
	return cs
}

// GenericNames returns ch0..chN-1.
func GenericNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("ch%d", i)
	}
	return names
}

// usableNames accepts exactly n non-empty, distinct labels.
func usableNames(names []string, n int) bool {
	if len(names) != n || n == 0 {
		return false
	}
	seen := make(map[string]struct{}, n)
	for _, name := range names {
		if name == "" {
			return false
		}
		if _, dup := seen[name]; dup {
			return false
		}
		seen[name] = struct{}{}
	}
	return true
}

// Names returns a copy of the ordered channel labels.
func (c ChannelSet) Names() []string {
	return slices.Clone(c.names)
}

// Count returns the number of channels.
func (c ChannelSet) Count() int {
	return len(c.names)
}

// Rate returns the nominal sampling rate in Hz; 0 means irregular or unknown.
func (c ChannelSet) Rate() float64 {
	return c.rate
}
