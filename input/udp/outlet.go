package udp

import (
	"fmt"
	"net"
	"sync"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
)

// Outlet publishes one stream to a Resolver's socket.
type Outlet struct {
	desc message.Descriptor
	conn *net.UDPConn

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// DialOutlet connects an outlet for desc to the resolver at addr.
func DialOutlet(addr string, desc message.Descriptor) (*Outlet, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"udp", "DialOutlet", "address parsing")
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.WrapTransient(err, "udp", "DialOutlet", "dial")
	}
	return &Outlet{desc: desc, conn: conn}, nil
}

// Descriptor returns the announced descriptor.
func (o *Outlet) Descriptor() message.Descriptor {
	return o.desc
}

// Announce broadcasts the descriptor. Sources repeat it periodically so a
// late listener can resolve them.
func (o *Outlet) Announce() error {
	return o.send(message.AnnouncePacket(o.desc))
}

// Send publishes one chunk. Chunks are split so each datagram stays under
// the size limit.
func (o *Outlet) Send(timestamps []float64, samples [][]float64) error {
	const maxPerDatagram = 128
	for start := 0; start < len(samples) || start < len(timestamps); start += maxPerDatagram {
		o.mu.Lock()
		seq := o.seq
		o.seq++
		o.mu.Unlock()

		chunk := message.Chunk{
			SourceID:   o.desc.SourceID,
			Seq:        seq,
			Timestamps: window(timestamps, start, maxPerDatagram),
			Samples:    window(samples, start, maxPerDatagram),
		}
		if err := o.send(message.ChunkPacket(chunk)); err != nil {
			return err
		}
	}
	return nil
}

func window[T any](s []T, start, n int) []T {
	if start >= len(s) {
		return nil
	}
	return s[start:min(start+n, len(s))]
}

func (o *Outlet) send(p message.Packet) error {
	data, err := message.EncodePacket(p)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "udp", "Outlet.send", "outlet closed")
	}
	if _, err := o.conn.Write(data); err != nil {
		return errors.WrapTransient(err, "udp", "Outlet.send", "write datagram")
	}
	return nil
}

// Close sends a goodbye and closes the socket. Safe to call more than once.
func (o *Outlet) Close() error {
	goodbyeErr := o.send(message.GoodbyePacket(o.desc))

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.conn.Close(); err != nil {
		return errors.WrapTransient(err, "udp", "Outlet.Close", "close socket")
	}
	if goodbyeErr != nil {
		return goodbyeErr
	}
	return nil
}
