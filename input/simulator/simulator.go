// Package simulator provides an in-process synthetic EEG stream. It stands
// in for a headset during development and drives the end-to-end tests.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/stream"
)

// Config describes the synthetic stream.
type Config struct {
	Name         string
	Type         string
	Channels     int
	Rate         float64
	Amplitude    float64
	NoiseLevel   float64
	ChannelNames []string

	// Realtime paces samples at Rate against the wall clock. When false,
	// every Pull returns a full chunk immediately.
	Realtime bool

	// Limit ends the stream after this many samples; 0 streams forever.
	Limit uint64

	// VisibleAfter hides the stream from Resolve until this much time has
	// passed since the source was created.
	VisibleAfter time.Duration

	Seed uint64
}

// DefaultConfig mirrors a four channel Muse headband.
func DefaultConfig() Config {
	return Config{
		Name:         "FakeMuse",
		Type:         "EEG",
		Channels:     4,
		Rate:         256,
		Amplitude:    50,
		NoiseLevel:   5,
		ChannelNames: []string{"TP9", "AF7", "AF8", "TP10"},
		Realtime:     true,
	}
}

// Source is a stream.Resolver announcing a single synthetic stream.
type Source struct {
	cfg     Config
	desc    message.Descriptor
	created time.Time
	logger  *slog.Logger
	tracker component.Tracker
}

var (
	_ stream.Resolver        = (*Source)(nil)
	_ component.Discoverable = (*Source)(nil)
)

// NewSource validates cfg and creates the source.
func NewSource(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Channels < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: channels %d", errors.ErrInvalidConfig, cfg.Channels),
			"simulator", "NewSource", "channel validation")
	}
	if cfg.Rate <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: rate %g", errors.ErrInvalidConfig, cfg.Rate),
			"simulator", "NewSource", "rate validation")
	}
	if cfg.Type == "" {
		cfg.Type = "EEG"
	}
	if cfg.Name == "" {
		cfg.Name = "FakeMuse"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var names []string
	if len(cfg.ChannelNames) == cfg.Channels {
		names = cfg.ChannelNames
	}

	now := time.Now()
	return &Source{
		cfg: cfg,
		desc: message.Descriptor{
			SourceID:     "sim-" + uuid.NewString(),
			Name:         cfg.Name,
			Type:         cfg.Type,
			ChannelCount: cfg.Channels,
			NominalRate:  cfg.Rate,
			ChannelNames: names,
			Hostname:     "localhost",
			CreatedAt:    now,
		},
		created: now,
		logger:  logger.With("component", "simulator"),
	}, nil
}

// Descriptor returns the announced stream descriptor.
func (s *Source) Descriptor() message.Descriptor {
	return s.desc
}

// Resolve implements stream.Resolver.
func (s *Source) Resolve(_ context.Context, streamType string) ([]message.Descriptor, error) {
	if time.Since(s.created) < s.cfg.VisibleAfter {
		return nil, nil
	}
	if !s.desc.MatchesType(streamType) {
		return nil, nil
	}
	return []message.Descriptor{s.desc}, nil
}

// Open implements stream.Resolver.
func (s *Source) Open(_ context.Context, desc message.Descriptor, _ stream.InletOptions) (stream.Inlet, error) {
	if desc.SourceID != s.desc.SourceID {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown source %q", errors.ErrNoStreamFound, desc.SourceID),
			"simulator", "Open", "source lookup")
	}

	s.tracker.Start()
	s.logger.Info("Synthetic stream opened",
		"name", s.desc.Name, "channels", s.cfg.Channels, "rate", s.cfg.Rate, "realtime", s.cfg.Realtime)

	return &inlet{
		src:   s,
		gen:   NewGenerator(s.cfg.Channels, s.cfg.Rate, s.cfg.Amplitude, s.cfg.NoiseLevel, s.cfg.Seed),
		start: time.Now(),
		base:  float64(time.Now().UnixNano()) / 1e9,
	}, nil
}

// Meta implements component.Discoverable.
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        "simulator",
		Type:        "input",
		Description: fmt.Sprintf("Synthetic %s stream %q, %d channels at %g Hz", s.cfg.Type, s.cfg.Name, s.cfg.Channels, s.cfg.Rate),
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (s *Source) Health() component.HealthStatus {
	return s.tracker.Health()
}

// DataFlow implements component.Discoverable.
func (s *Source) DataFlow() component.FlowMetrics {
	return s.tracker.DataFlow()
}

// inlet generates samples on demand, paced by the time since Open.
type inlet struct {
	src   *Source
	gen   *Generator
	start time.Time
	base  float64

	mu     sync.Mutex
	closed bool
}

func (in *inlet) Pull(ctx context.Context, maxSamples int, timeout time.Duration) ([][]float64, []float64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "simulator", "Pull", "read")
	}
	if maxSamples <= 0 {
		return nil, nil, nil
	}

	n := maxSamples
	if limit := in.src.cfg.Limit; limit > 0 {
		if in.gen.Produced() >= limit {
			in.src.tracker.Stop()
			return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "simulator", "Pull", "limit reached")
		}
		n = int(min(uint64(n), limit-in.gen.Produced()))
	}
	if in.src.cfg.Realtime {
		if n = in.waitDue(ctx, n, timeout); n == 0 {
			return nil, nil, nil
		}
	}

	timestamps, samples := in.gen.Chunk(n)
	for i := range timestamps {
		timestamps[i] += in.base
	}
	in.src.tracker.RecordActivity(n, n*in.src.cfg.Channels*8)
	return samples, timestamps, nil
}

// waitDue blocks until at least one sample is due at the nominal rate or
// timeout passes, and returns how many may be generated.
func (in *inlet) waitDue(ctx context.Context, limit int, timeout time.Duration) int {
	rate := in.src.cfg.Rate
	deadline := time.Now().Add(timeout)

	for {
		due := int(time.Since(in.start).Seconds()*rate) - int(in.gen.Produced())
		if due > 0 {
			return min(due, limit)
		}

		next := in.start.Add(time.Duration(float64(in.gen.Produced()+1) / rate * float64(time.Second)))
		if next.After(deadline) {
			next = deadline
		}
		wait := time.Until(next)
		if wait <= 0 {
			if !time.Now().Before(deadline) {
				return 0
			}
			continue
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0
		case <-t.C:
		}
	}
}

func (in *inlet) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.closed {
		in.closed = true
		in.src.tracker.Stop()
	}
	return nil
}
