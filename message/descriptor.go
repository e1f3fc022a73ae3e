package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/eegstreams/errors"
)

// Descriptor announces a stream on a discovery surface: the UDP announce
// datagram, the NATS key-value directory, or an in-process source.
type Descriptor struct {
	SourceID     string    `json:"source_id" msgpack:"source_id"`
	Name         string    `json:"name" msgpack:"name"`
	Type         string    `json:"type" msgpack:"type"`
	ChannelCount int       `json:"channel_count" msgpack:"channel_count"`
	NominalRate  float64   `json:"nominal_rate" msgpack:"nominal_rate"`
	ChannelNames []string  `json:"channel_names,omitempty" msgpack:"channel_names,omitempty"`
	Hostname     string    `json:"hostname,omitempty" msgpack:"hostname,omitempty"`
	Subject      string    `json:"subject,omitempty" msgpack:"subject,omitempty"`
	CreatedAt    time.Time `json:"created_at" msgpack:"created_at"`
}

// Validate checks the fields every transport relies on.
func (d Descriptor) Validate() error {
	switch {
	case d.SourceID == "":
		return errors.WrapInvalid(errors.ErrInvalidData, "Descriptor", "Validate", "source_id required")
	case d.Type == "":
		return errors.WrapInvalid(errors.ErrInvalidData, "Descriptor", "Validate", "type required")
	case d.ChannelCount < 1:
		return errors.WrapInvalid(
			fmt.Errorf("%w: channel_count %d", errors.ErrInvalidData, d.ChannelCount),
			"Descriptor", "Validate", "channel count check")
	case d.NominalRate < 0:
		return errors.WrapInvalid(
			fmt.Errorf("%w: nominal_rate %g", errors.ErrInvalidData, d.NominalRate),
			"Descriptor", "Validate", "rate check")
	}
	return nil
}

// MatchesType reports whether the descriptor carries the requested stream
// type. Types compare case-insensitively, as "EEG" and "eeg" name the same
// stream kind.
func (d Descriptor) MatchesType(streamType string) bool {
	return strings.EqualFold(d.Type, streamType)
}

// MarshalDescriptor encodes a descriptor as JSON for the key-value directory.
func MarshalDescriptor(d Descriptor) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Descriptor", "Marshal", "encode descriptor")
	}
	return data, nil
}

// UnmarshalDescriptor decodes and validates a JSON descriptor.
func UnmarshalDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"Descriptor", "Unmarshal", "decode descriptor")
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}
