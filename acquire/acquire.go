// Package acquire turns raw inlet pulls into indexed, fixed-width samples
// and hands them to the pipeline's sinks.
package acquire

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/stream"
)

// Sink consumes acquired batches. Sinks see every batch in arrival order.
type Sink interface {
	Consume(batch message.Batch) error
}

// StopFlag is checked after every pull.
type StopFlag interface {
	Stopping() bool
}

// MalformedSample reports a sample whose width differed from the channel
// count. It is a warning: the sample is still delivered, padded or
// truncated.
type MalformedSample struct {
	Index uint64
	Got   int
	Want  int
}

func (m MalformedSample) Error() string {
	return fmt.Sprintf("sample %d has %d values, expected %d", m.Index, m.Got, m.Want)
}

func (m MalformedSample) Unwrap() error {
	return errors.ErrMalformedSample
}

// Normalize returns raw fitted to width: missing values become NaN and
// extra values are dropped. ok is false when raw had the wrong width.
func Normalize(raw []float64, width int) (values []float64, ok bool) {
	values = make([]float64, width)
	n := copy(values, raw)
	for i := n; i < width; i++ {
		values[i] = math.NaN()
	}
	return values, len(raw) == width
}

// Config holds acquisition settings
type Config struct {
	ChunkSize   int
	PullTimeout time.Duration
}

// DefaultConfig returns the acquisition defaults
func DefaultConfig() Config {
	return Config{ChunkSize: 256, PullTimeout: time.Second}
}

// Deps holds runtime dependencies for the acquirer
type Deps struct {
	Inlet           stream.Inlet
	Channels        int
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger

	// Now stamps each pull's wall time. Defaults to time.Now.
	Now func() time.Time
}

// Acquirer pulls from one inlet. It is driven by a single goroutine.
type Acquirer struct {
	cfg     Config
	inlet   stream.Inlet
	width   int
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
	tracker component.Tracker

	next      atomic.Uint64
	malformed atomic.Uint64
	warnings  *rate.Limiter
	muted     int
}

var _ component.Discoverable = (*Acquirer)(nil)

// New creates an acquirer for deps.Inlet.
func New(cfg Config, deps Deps) (*Acquirer, error) {
	if deps.Inlet == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: inlet is required", errors.ErrMissingConfig),
			"acquire", "New", "deps check")
	}
	if deps.Channels < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: channel count %d", errors.ErrInvalidConfig, deps.Channels),
			"acquire", "New", "deps check")
	}
	def := DefaultConfig()
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = def.PullTimeout
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.WrapTransient(err, "acquire", "New", "metrics registration")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Acquirer{
		cfg:      cfg,
		inlet:    deps.Inlet,
		width:    deps.Channels,
		now:      now,
		logger:   logger.With("component", "acquire"),
		metrics:  metrics,
		warnings: rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Produced returns the number of samples acquired, which is also the next
// sample index.
func (a *Acquirer) Produced() uint64 {
	return a.next.Load()
}

// Malformed returns the number of samples that had to be padded or
// truncated.
func (a *Acquirer) Malformed() uint64 {
	return a.malformed.Load()
}

// Pull performs one pull and returns its samples with indices assigned.
// An empty batch is not an error.
func (a *Acquirer) Pull(ctx context.Context) (message.Batch, error) {
	start := time.Now()
	raw, timestamps, err := a.inlet.Pull(ctx, a.cfg.ChunkSize, a.cfg.PullTimeout)
	if a.metrics != nil {
		a.metrics.pullDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.pullErrors.WithLabelValues(errors.Classify(err).String()).Inc()
		}
		a.tracker.RecordError(err)
		return nil, err
	}

	n := min(len(raw), len(timestamps))
	if len(raw) != len(timestamps) {
		dropped := max(len(raw), len(timestamps)) - n
		if a.metrics != nil {
			a.metrics.unpaired.Add(float64(dropped))
		}
		a.warn("Pull returned mismatched sample and timestamp counts",
			"samples", len(raw), "timestamps", len(timestamps), "dropped", dropped)
	}
	if n == 0 {
		if a.metrics != nil {
			a.metrics.emptyPulls.Inc()
		}
		return nil, nil
	}

	wall := a.now()
	batch := make(message.Batch, n)
	for i := range n {
		idx := a.next.Add(1) - 1
		values, ok := Normalize(raw[i], a.width)
		if !ok {
			a.malformed.Add(1)
			if a.metrics != nil {
				a.metrics.malformed.Inc()
			}
			a.warn("Malformed sample", "error", MalformedSample{Index: idx, Got: len(raw[i]), Want: a.width})
		}
		batch[i] = message.Sample{
			Index:     idx,
			Timestamp: timestamps[i],
			WallTime:  wall,
			Values:    values,
		}
	}

	a.tracker.RecordActivity(n, n*a.width*8)
	if a.metrics != nil {
		a.metrics.samples.Add(float64(n))
		a.metrics.chunks.Inc()
		a.metrics.chunkSize.Observe(float64(n))
	}
	return batch, nil
}

// warn logs at most a few warnings per second and reports how many were
// suppressed in between.
func (a *Acquirer) warn(msg string, args ...any) {
	if !a.warnings.Allow() {
		a.muted++
		return
	}
	if a.muted > 0 {
		args = append(args, "suppressed", a.muted)
		a.muted = 0
	}
	a.logger.Warn(msg, args...)
}

// Run pulls until stop reports true, ctx ends, the source closes or a sink
// fails. Each batch goes to the sinks in the order given. Transient pull
// errors are logged and retried; the source closing or a fatal error ends
// the loop and is returned. A nil return means a requested stop.
func (a *Acquirer) Run(ctx context.Context, stop StopFlag, sinks ...Sink) error {
	a.tracker.Start()
	defer a.tracker.Stop()

	a.logger.Info("Acquisition started", "chunk_size", a.cfg.ChunkSize, "pull_timeout", a.cfg.PullTimeout)

	for !stop.Stopping() && ctx.Err() == nil {
		batch, err := a.Pull(ctx)
		if err != nil {
			if stderrors.Is(err, errors.ErrSourceClosed) || !errors.IsTransient(err) {
				a.logger.Info("Acquisition ended by source", "produced", a.Produced(), "error", err)
				return err
			}
			a.warn("Pull failed, retrying", "error", err)
			if !sleep(ctx, backoff(a.cfg.PullTimeout)) {
				break
			}
			continue
		}

		if len(batch) == 0 {
			continue
		}
		for _, sink := range sinks {
			if err := sink.Consume(batch); err != nil {
				a.tracker.Fail(err)
				a.logger.Error("Sink failed", "produced", a.Produced(), "error", err)
				return err
			}
		}
	}

	a.logger.Info("Acquisition stopped", "produced", a.Produced(), "malformed", a.Malformed())
	return nil
}

func backoff(pullTimeout time.Duration) time.Duration {
	return min(pullTimeout, 100*time.Millisecond)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Meta implements component.Discoverable.
func (a *Acquirer) Meta() component.Metadata {
	return component.Metadata{
		Name:        "acquire",
		Type:        "acquirer",
		Description: fmt.Sprintf("Chunked acquisition, %d channels, up to %d samples per pull", a.width, a.cfg.ChunkSize),
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (a *Acquirer) Health() component.HealthStatus {
	return a.tracker.Health()
}

// DataFlow implements component.Discoverable.
func (a *Acquirer) DataFlow() component.FlowMetrics {
	return a.tracker.DataFlow()
}
