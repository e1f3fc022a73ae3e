package message

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/eegstreams/errors"
)

// Chunk is a group of samples published together by a source. Samples and
// Timestamps are parallel; a well-formed chunk has equal lengths and every
// sample row has the stream's channel count, but receivers must not assume it.
type Chunk struct {
	SourceID   string      `msgpack:"source_id"`
	Seq        uint64      `msgpack:"seq"`
	Timestamps []float64   `msgpack:"timestamps"`
	Samples    [][]float64 `msgpack:"samples"`
}

// PacketKind identifies the payload of a Packet.
type PacketKind uint8

const (
	// KindAnnounce carries a Descriptor
	KindAnnounce PacketKind = iota + 1
	// KindChunk carries a Chunk
	KindChunk
	// KindGoodbye tells receivers the source stopped streaming
	KindGoodbye
)

// String returns the kind name used in logs.
func (k PacketKind) String() string {
	switch k {
	case KindAnnounce:
		return "announce"
	case KindChunk:
		return "chunk"
	case KindGoodbye:
		return "goodbye"
	default:
		return "unknown"
	}
}

// Packet is the msgpack envelope sent over datagram and message transports.
type Packet struct {
	Kind       PacketKind  `msgpack:"kind"`
	Descriptor *Descriptor `msgpack:"descriptor,omitempty"`
	Chunk      *Chunk      `msgpack:"chunk,omitempty"`
}

// EncodePacket serializes a packet with msgpack. NaN values survive the
// round trip.
func EncodePacket(p Packet) ([]byte, error) {
	data, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Packet", "Encode", "marshal msgpack")
	}
	return data, nil
}

// DecodePacket parses a msgpack packet and checks that the payload matches
// its kind.
func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return Packet{}, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"Packet", "Decode", "unmarshal msgpack")
	}

	switch p.Kind {
	case KindAnnounce, KindGoodbye:
		if p.Descriptor == nil {
			return Packet{}, errors.WrapInvalid(errors.ErrInvalidData, "Packet", "Decode",
				fmt.Sprintf("%s without descriptor", p.Kind))
		}
		if err := p.Descriptor.Validate(); err != nil {
			return Packet{}, err
		}
	case KindChunk:
		if p.Chunk == nil {
			return Packet{}, errors.WrapInvalid(errors.ErrInvalidData, "Packet", "Decode", "chunk without payload")
		}
	default:
		return Packet{}, errors.WrapInvalid(
			fmt.Errorf("%w: kind %d", errors.ErrInvalidData, p.Kind),
			"Packet", "Decode", "kind check")
	}
	return p, nil
}

// AnnouncePacket wraps a descriptor for broadcast.
func AnnouncePacket(d Descriptor) Packet {
	return Packet{Kind: KindAnnounce, Descriptor: &d}
}

// GoodbyePacket wraps a descriptor for the final broadcast of a source.
func GoodbyePacket(d Descriptor) Packet {
	return Packet{Kind: KindGoodbye, Descriptor: &d}
}

// ChunkPacket wraps a chunk for transmission.
func ChunkPacket(c Chunk) Packet {
	return Packet{Kind: KindChunk, Chunk: &c}
}
