package stream

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/pkg/buffer"
)

// timedSample is one queued sample with its source timestamp.
type timedSample struct {
	ts     float64
	values []float64
}

// QueueCapacity converts a buffering horizon into a sample count. Streams
// with an irregular rate fall back to a fixed bound.
func QueueCapacity(maxBuffered time.Duration, rate float64) int {
	const fallback = 4096
	if maxBuffered <= 0 || rate <= 0 {
		return fallback
	}
	return max(1, int(math.Ceil(maxBuffered.Seconds()*rate)))
}

// Queue is an Inlet fed by a network reader. It holds a bounded horizon of
// samples and drops the oldest when the consumer falls behind.
type Queue struct {
	buf     buffer.Buffer[timedSample]
	dropped atomic.Uint64

	mu       sync.Mutex
	eos      bool
	closed   bool
	onClose  func() error
	done     chan struct{}
	doneOnce sync.Once
}

// QueueOption configures a Queue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	registry *metric.MetricsRegistry
	prefix   string
	onClose  func() error
}

// WithQueueMetrics exports queue depth and drops under the given prefix.
func WithQueueMetrics(registry *metric.MetricsRegistry, prefix string) QueueOption {
	return func(o *queueOptions) {
		o.registry = registry
		o.prefix = prefix
	}
}

// WithOnClose runs fn once when the queue is closed by its consumer.
func WithOnClose(fn func() error) QueueOption {
	return func(o *queueOptions) {
		o.onClose = fn
	}
}

// NewQueue creates a queue holding at most capacity samples.
func NewQueue(capacity int, opts ...QueueOption) (*Queue, error) {
	o := &queueOptions{}
	for _, opt := range opts {
		opt(o)
	}

	q := &Queue{onClose: o.onClose, done: make(chan struct{})}
	buf, err := buffer.NewCircularBuffer(capacity,
		buffer.WithMetrics[timedSample](o.registry, o.prefix),
		buffer.OnDrop(func(timedSample) { q.dropped.Add(1) }),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "Queue", "NewQueue", "buffer creation")
	}
	q.buf = buf
	return q, nil
}

// Push queues one sample.
func (q *Queue) Push(ts float64, values []float64) error {
	return q.buf.Write(timedSample{ts: ts, values: values})
}

// PushChunk queues the paired prefix of a chunk and returns how many
// samples or timestamps had no partner.
func (q *Queue) PushChunk(timestamps []float64, samples [][]float64) (unpaired int, err error) {
	n := min(len(timestamps), len(samples))
	for i := 0; i < n; i++ {
		if err := q.Push(timestamps[i], samples[i]); err != nil {
			return 0, err
		}
	}
	return max(len(timestamps), len(samples)) - n, nil
}

// EndOfStream marks that no more samples will be pushed. Pull drains what
// is queued and then reports errors.ErrSourceClosed.
func (q *Queue) EndOfStream() {
	q.mu.Lock()
	q.eos = true
	q.mu.Unlock()
	_ = q.buf.Close()
	q.doneOnce.Do(func() { close(q.done) })
}

// Pull implements Inlet. A non-positive timeout polls without waiting.
func (q *Queue) Pull(ctx context.Context, maxSamples int, timeout time.Duration) ([][]float64, []float64, error) {
	if maxSamples <= 0 {
		return nil, nil, nil
	}

	t := time.NewTimer(max(timeout, 0))
	defer t.Stop()

	for {
		if items := q.buf.ReadBatch(maxSamples); len(items) > 0 {
			samples := make([][]float64, len(items))
			timestamps := make([]float64, len(items))
			for i, it := range items {
				samples[i] = it.values
				timestamps[i] = it.ts
			}
			return samples, timestamps, nil
		}

		if q.finished() {
			return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "Queue", "Pull", "read")
		}

		select {
		case <-ctx.Done():
			return nil, nil, nil
		case <-t.C:
			return nil, nil, nil
		case <-q.buf.Ready():
		case <-q.done:
		}
	}
}

func (q *Queue) finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eos || q.closed
}

// Dropped returns how many samples were discarded for exceeding the horizon.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	return q.buf.Size()
}

// Close implements Inlet.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	onClose := q.onClose
	q.mu.Unlock()

	_ = q.buf.Close()
	q.doneOnce.Do(func() { close(q.done) })
	if onClose != nil {
		return onClose()
	}
	return nil
}
