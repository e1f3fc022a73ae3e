package message

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/eegstreams/errors"
)

func museDescriptor() Descriptor {
	return Descriptor{
		SourceID:     "muse-1",
		Name:         "FakeMuse",
		Type:         "EEG",
		ChannelCount: 4,
		NominalRate:  256,
		ChannelNames: []string{"TP9", "AF7", "AF8", "TP10"},
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSampleClone(t *testing.T) {
	s := Sample{Index: 3, Timestamp: 1.5, Values: []float64{1, 2}}
	c := s.Clone()
	c.Values[0] = 99
	assert.Equal(t, 1.0, s.Values[0])
	assert.Equal(t, uint64(3), c.Index)
}

func TestChunkPacketKeepsNaN(t *testing.T) {
	chunk := Chunk{
		SourceID:   "muse-1",
		Seq:        7,
		Timestamps: []float64{100.0, 100.004},
		Samples:    [][]float64{{1.5, math.NaN(), -3, 0}, {2, 2, 2}},
	}

	data, err := EncodePacket(ChunkPacket(chunk))
	require.NoError(t, err)

	p, err := DecodePacket(data)
	require.NoError(t, err)
	require.Equal(t, KindChunk, p.Kind)
	require.NotNil(t, p.Chunk)

	if diff := cmp.Diff(chunk, *p.Chunk, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("chunk mismatch (-want +got):\n%s", diff)
	}
}

func TestAnnouncePacket(t *testing.T) {
	data, err := EncodePacket(AnnouncePacket(museDescriptor()))
	require.NoError(t, err)

	p, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, KindAnnounce, p.Kind)
	assert.Equal(t, "FakeMuse", p.Descriptor.Name)
	assert.True(t, p.Descriptor.CreatedAt.Equal(museDescriptor().CreatedAt))
}

func TestDecodePacketRejects(t *testing.T) {
	invalidDesc := museDescriptor()
	invalidDesc.ChannelCount = 0

	encode := func(v any) []byte {
		data, err := msgpack.Marshal(v)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{0xc1, 0x00, 0x13}},
		{"unknown kind", encode(&Packet{Kind: 42})},
		{"announce without descriptor", encode(&Packet{Kind: KindAnnounce})},
		{"chunk without payload", encode(&Packet{Kind: KindChunk})},
		{"invalid descriptor", encode(&Packet{Kind: KindGoodbye, Descriptor: &invalidDesc})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket(tt.data)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Descriptor)
		wantErr bool
	}{
		{"valid", func(*Descriptor) {}, false},
		{"missing source", func(d *Descriptor) { d.SourceID = "" }, true},
		{"missing type", func(d *Descriptor) { d.Type = "" }, true},
		{"no channels", func(d *Descriptor) { d.ChannelCount = 0 }, true},
		{"negative rate", func(d *Descriptor) { d.NominalRate = -1 }, true},
		{"irregular rate", func(d *Descriptor) { d.NominalRate = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := museDescriptor()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDescriptorJSON(t *testing.T) {
	data, err := MarshalDescriptor(museDescriptor())
	require.NoError(t, err)

	got, err := UnmarshalDescriptor(data)
	require.NoError(t, err)
	assert.Equal(t, museDescriptor().ChannelNames, got.ChannelNames)
	assert.True(t, got.MatchesType("eeg"))
	assert.False(t, got.MatchesType("PPG"))

	_, err = UnmarshalDescriptor([]byte(`{"source_id":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
}

func TestPacketKindString(t *testing.T) {
	assert.Equal(t, "announce", KindAnnounce.String())
	assert.Equal(t, "chunk", KindChunk.String())
	assert.Equal(t, "goodbye", KindGoodbye.String())
	assert.Equal(t, "unknown", PacketKind(0).String())
}
