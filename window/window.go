// Package window keeps the most recent stretch of samples for the live view.
//
// The buffer is bounded by time, not by count: after every prune it holds
// only points whose timestamp is within Duration of the reference time.
// Consume uses the newest appended timestamp as that reference, so the
// window follows the source clock and does not drain while the source
// stalls. Timestamps are expected to be non-decreasing; eviction only looks
// at the front.
package window

import (
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/pkg/buffer"
)

// Point is one buffered sample.
type Point struct {
	Timestamp float64
	Values    []float64
}

// Snapshot is an immutable copy of the buffer in insertion order.
type Snapshot struct {
	Points   []Point
	Channels int
	Duration time.Duration
}

// Len returns the number of points.
func (s Snapshot) Len() int {
	return len(s.Points)
}

// Latest returns the newest timestamp, or false for an empty snapshot.
func (s Snapshot) Latest() (float64, bool) {
	if len(s.Points) == 0 {
		return 0, false
	}
	return s.Points[len(s.Points)-1].Timestamp, true
}

// Series returns the timestamps and the values of channel ch.
func (s Snapshot) Series(ch int) (timestamps, values []float64) {
	timestamps = make([]float64, len(s.Points))
	values = make([]float64, len(s.Points))
	for i, p := range s.Points {
		timestamps[i] = p.Timestamp
		if ch >= 0 && ch < len(p.Values) {
			values[i] = p.Values[ch]
		}
	}
	return timestamps, values
}

// Metrics holds Prometheus metrics for the window
type Metrics struct {
	points  prometheus.Gauge
	evicted prometheus.Counter
}

// NewMetrics registers window metrics. A nil registry returns nil.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &Metrics{
		points: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "window",
			Name:      "points",
			Help:      "Points currently in the live window",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "window",
			Name:      "evicted_total",
			Help:      "Points pruned from the live window",
		}),
	}
	if err := registry.RegisterGauge("window", "points", m.points); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("window", "evicted", m.evicted); err != nil {
		return nil, err
	}
	return m, nil
}

// Option configures a Buffer
type Option func(*Buffer)

// WithMetrics attaches metrics created by NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(b *Buffer) { b.metrics = m }
}

// Buffer is a time-bounded sliding window. It is safe for one writer and
// any number of concurrent readers; readers hold the lock only while
// copying.
type Buffer struct {
	duration time.Duration
	span     float64
	channels int
	metrics  *Metrics

	mu      sync.RWMutex
	ring    *buffer.Ring[Point]
	evicted uint64
}

// New creates a window of the given duration for channels channels.
func New(duration time.Duration, channels int, opts ...Option) *Buffer {
	b := &Buffer{
		duration: duration,
		span:     duration.Seconds(),
		channels: channels,
		ring:     buffer.NewRing[Point](1024),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Duration returns the window length.
func (b *Buffer) Duration() time.Duration {
	return b.duration
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return b.channels
}

// Append adds a sample at the back. The values are copied.
func (b *Buffer) Append(s message.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring.PushBack(Point{Timestamp: s.Timestamp, Values: slices.Clone(s.Values)})
	b.updateGauge()
}

// Prune evicts every point older than now minus the window duration and
// returns how many were removed.
func (b *Buffer) Prune(now float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.pruneLocked(now)
	b.updateGauge()
	return n
}

func (b *Buffer) pruneLocked(now float64) int {
	cutoff := now - b.span
	n := 0
	for {
		p, ok := b.ring.Front()
		if !ok || p.Timestamp >= cutoff {
			break
		}
		b.ring.PopFront()
		n++
	}
	b.evicted += uint64(n)
	if b.metrics != nil && n > 0 {
		b.metrics.evicted.Add(float64(n))
	}
	return n
}

// Consume appends the batch and prunes against its newest timestamp.
func (b *Buffer) Consume(batch message.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range batch {
		b.ring.PushBack(Point{Timestamp: s.Timestamp, Values: slices.Clone(s.Values)})
	}
	latest, _ := b.ring.Back()
	b.pruneLocked(latest.Timestamp)
	b.updateGauge()
	return nil
}

func (b *Buffer) updateGauge() {
	if b.metrics != nil {
		b.metrics.points.Set(float64(b.ring.Len()))
	}
}

// Snapshot copies the buffer. Point values are shared with the buffer but
// never modified by it.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Points:   b.ring.Slice(),
		Channels: b.channels,
		Duration: b.duration,
	}
}

// Series returns the timestamps and values of channel ch.
func (b *Buffer) Series(ch int) (timestamps, values []float64) {
	return b.Snapshot().Series(ch)
}

// Latest returns the newest timestamp in the buffer.
func (b *Buffer) Latest() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.ring.Back()
	return p.Timestamp, ok
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ring.Len()
}

// Evicted returns the number of points pruned so far.
func (b *Buffer) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}
