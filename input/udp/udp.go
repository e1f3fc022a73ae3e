// Package udp provides a datagram stream transport: sources announce
// themselves and send msgpack sample chunks to a listening Resolver.
package udp

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/pkg/retry"
	"github.com/c360/eegstreams/stream"
)

// DefaultBind is the listen address used when none is configured.
const DefaultBind = "0.0.0.0:16571"

// maxDatagram bounds a single packet.
const maxDatagram = 65536

// Config configures the UDP resolver.
type Config struct {
	// Bind is the host:port to listen on. Port 0 picks a free port.
	Bind string

	// AnnounceTTL is how long a stream stays resolvable after its last
	// announcement.
	AnnounceTTL time.Duration
}

// Deps holds runtime dependencies for the resolver
type Deps struct {
	Config          Config
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

type announced struct {
	desc     message.Descriptor
	lastSeen time.Time
}

type inletState struct {
	queue   *stream.Queue
	lastSeq uint64
	haveSeq bool
}

// Resolver listens for announcements and chunks on a UDP socket.
type Resolver struct {
	cfg         Config
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	metrics     *Metrics
	retryConfig retry.Config
	tracker     component.Tracker

	mu      sync.RWMutex
	conn    *net.UDPConn
	streams map[string]*announced
	inlets  map[string]*inletState

	shutdown chan struct{}
	done     chan struct{}
	running  atomic.Bool
}

var (
	_ stream.Resolver        = (*Resolver)(nil)
	_ component.Discoverable = (*Resolver)(nil)
)

// NewResolver creates the resolver. It does not bind until Start.
func NewResolver(deps Deps) (*Resolver, error) {
	cfg := deps.Config
	if cfg.Bind == "" {
		cfg.Bind = DefaultBind
	}
	if cfg.AnnounceTTL <= 0 {
		cfg.AnnounceTTL = 5 * time.Second
	}
	if _, _, err := net.SplitHostPort(cfg.Bind); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: bind %q: %w", errors.ErrInvalidConfig, cfg.Bind, err),
			"udp", "NewResolver", "address parsing")
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.WrapTransient(err, "udp", "NewResolver", "metrics registration")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		cfg:         cfg,
		logger:      logger.With("component", "udp", "bind", cfg.Bind),
		registry:    deps.MetricsRegistry,
		metrics:     metrics,
		retryConfig: retry.DefaultConfig(),
		streams:     make(map[string]*announced),
		inlets:      make(map[string]*inletState),
	}, nil
}

// Start binds the socket and begins reading packets.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return nil
	}

	if err := retry.Do(ctx, r.retryConfig, r.bindSocket); err != nil {
		return errors.WrapTransient(err, "udp", "Start", "socket binding")
	}

	r.shutdown = make(chan struct{})
	r.done = make(chan struct{})
	r.running.Store(true)
	r.tracker.Start()

	conn, shutdown, done := r.conn, r.shutdown, r.done
	go func() {
		defer close(done)
		r.readLoop(ctx, conn, shutdown)
	}()

	r.logger.Info("Listening for streams", "addr", conn.LocalAddr().String())
	return nil
}

// bindSocket creates and binds the UDP socket
func (r *Resolver) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", r.cfg.Bind)
	if err != nil {
		return retry.NonRetryable(fmt.Errorf("failed to resolve UDP address %s: %w", r.cfg.Bind, err))
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.cfg.Bind, err)
	}

	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		r.logger.Warn("Could not set UDP buffer size", "buffer_size", socketBufferSize, "error", err)
	}

	r.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *Resolver) Addr() net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stop closes the socket, ends every open inlet and waits up to timeout for
// the read loop to exit.
func (r *Resolver) Stop(timeout time.Duration) error {
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}

	r.mu.Lock()
	close(r.shutdown)
	if r.conn != nil {
		_ = r.conn.Close()
	}
	done := r.done
	inlets := r.inlets
	r.inlets = make(map[string]*inletState)
	r.mu.Unlock()

	for _, in := range inlets {
		in.queue.EndOfStream()
	}

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"udp", "Stop", "graceful shutdown")
	}

	r.mu.Lock()
	r.conn = nil
	r.mu.Unlock()
	r.tracker.Stop()
	return nil
}

func (r *Resolver) readLoop(ctx context.Context, conn *net.UDPConn, shutdown <-chan struct{}) {
	buf := make([]byte, maxDatagram)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			r.tracker.RecordError(err)
			if r.metrics != nil {
				r.metrics.socketErrors.Inc()
			}
			r.logger.Warn("UDP read failed", "error", err)
			continue
		}

		r.tracker.RecordActivity(0, n)
		if r.metrics != nil {
			r.metrics.packetsReceived.Inc()
			r.metrics.bytesReceived.Add(float64(n))
			r.metrics.lastActivity.SetToCurrentTime()
		}

		r.handlePacket(buf[:n])
	}
}

// handlePacket decodes one datagram and applies it. The decoder copies
// everything it keeps, so data may be reused afterwards.
func (r *Resolver) handlePacket(data []byte) {
	p, err := message.DecodePacket(data)
	if err != nil {
		r.tracker.RecordError(err)
		if r.metrics != nil {
			r.metrics.decodeErrors.Inc()
		}
		r.logger.Debug("Dropping undecodable datagram", "error", err)
		return
	}

	switch p.Kind {
	case message.KindAnnounce:
		r.announce(*p.Descriptor)
	case message.KindGoodbye:
		r.goodbye(p.Descriptor.SourceID)
	case message.KindChunk:
		r.deliver(p.Chunk)
	}
}

func (r *Resolver) announce(desc message.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, known := r.streams[desc.SourceID]
	if !known {
		r.logger.Info("Stream announced", "source_id", desc.SourceID, "name", desc.Name, "type", desc.Type)
		a = &announced{}
		r.streams[desc.SourceID] = a
	}
	a.desc = desc
	a.lastSeen = time.Now()
	if r.metrics != nil {
		r.metrics.knownStreams.Set(float64(len(r.streams)))
	}
}

func (r *Resolver) goodbye(sourceID string) {
	r.mu.Lock()
	delete(r.streams, sourceID)
	in := r.inlets[sourceID]
	delete(r.inlets, sourceID)
	if r.metrics != nil {
		r.metrics.knownStreams.Set(float64(len(r.streams)))
	}
	r.mu.Unlock()

	r.logger.Info("Stream said goodbye", "source_id", sourceID)
	if in != nil {
		in.queue.EndOfStream()
	}
}

func (r *Resolver) deliver(chunk *message.Chunk) {
	r.mu.Lock()
	in := r.inlets[chunk.SourceID]
	if a := r.streams[chunk.SourceID]; a != nil {
		a.lastSeen = time.Now()
	}
	var gap uint64
	if in != nil {
		if in.haveSeq && chunk.Seq > in.lastSeq+1 {
			gap = chunk.Seq - in.lastSeq - 1
		}
		in.lastSeq, in.haveSeq = chunk.Seq, true
	}
	r.mu.Unlock()

	if in == nil {
		return
	}
	if gap > 0 {
		r.logger.Warn("Chunks missing from stream", "source_id", chunk.SourceID, "missing", gap, "seq", chunk.Seq)
		if r.metrics != nil {
			r.metrics.sequenceGaps.Add(float64(gap))
		}
	}

	unpaired, err := in.queue.PushChunk(chunk.Timestamps, chunk.Samples)
	if err != nil {
		return
	}
	r.tracker.RecordActivity(min(len(chunk.Samples), len(chunk.Timestamps)), 0)
	if unpaired > 0 {
		r.logger.Warn("Chunk has mismatched sample and timestamp counts",
			"source_id", chunk.SourceID, "samples", len(chunk.Samples), "timestamps", len(chunk.Timestamps))
		if r.metrics != nil {
			r.metrics.unpairedSamples.Add(float64(unpaired))
		}
	}
}

// Resolve implements stream.Resolver. Streams are listed oldest first.
func (r *Resolver) Resolve(_ context.Context, streamType string) ([]message.Descriptor, error) {
	if !r.running.Load() {
		return nil, errors.WrapTransient(errors.ErrNotStarted, "udp", "Resolve", "listener check")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []message.Descriptor
	for _, a := range r.streams {
		if time.Since(a.lastSeen) > r.cfg.AnnounceTTL {
			continue
		}
		if a.desc.MatchesType(streamType) {
			out = append(out, a.desc)
		}
	}
	slices.SortFunc(out, func(a, b message.Descriptor) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SourceID, b.SourceID)
	})
	return out, nil
}

// Open implements stream.Resolver.
func (r *Resolver) Open(_ context.Context, desc message.Descriptor, opts stream.InletOptions) (stream.Inlet, error) {
	if !r.running.Load() {
		return nil, errors.WrapTransient(errors.ErrNotStarted, "udp", "Open", "listener check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[desc.SourceID]; !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: source %q not announced", errors.ErrNoStreamFound, desc.SourceID),
			"udp", "Open", "source lookup")
	}
	if _, open := r.inlets[desc.SourceID]; open {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: inlet for %q", errors.ErrAlreadyStarted, desc.SourceID),
			"udp", "Open", "inlet check")
	}

	sourceID := desc.SourceID
	q, err := stream.NewQueue(stream.QueueCapacity(opts.MaxBuffered, desc.NominalRate),
		stream.WithQueueMetrics(r.registry, "inlet"),
		stream.WithOnClose(func() error {
			r.mu.Lock()
			delete(r.inlets, sourceID)
			r.mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	r.inlets[sourceID] = &inletState{queue: q}
	return q, nil
}

// Meta implements component.Discoverable.
func (r *Resolver) Meta() component.Metadata {
	return component.Metadata{
		Name:        "udp",
		Type:        "input",
		Description: fmt.Sprintf("UDP stream listener on %s", r.cfg.Bind),
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (r *Resolver) Health() component.HealthStatus {
	return r.tracker.Health()
}

// DataFlow implements component.Discoverable.
func (r *Resolver) DataFlow() component.FlowMetrics {
	return r.tracker.DataFlow()
}
