// Package replay streams a recording back as if it came from a live source.
package replay

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/output/file"
	"github.com/c360/eegstreams/pkg/timestamp"
	"github.com/c360/eegstreams/stream"
)

// Config selects the recording to replay.
type Config struct {
	Path string
	Type string

	// Realtime spaces samples by their recorded timestamps. When false the
	// file is read as fast as it is pulled.
	Realtime bool
}

// Source is a stream.Resolver exposing one recording.
type Source struct {
	cfg     Config
	logger  *slog.Logger
	tracker component.Tracker

	once sync.Once
	desc message.Descriptor
	err  error
}

var (
	_ stream.Resolver        = (*Source)(nil)
	_ component.Discoverable = (*Source)(nil)
)

// NewSource creates a replay source. The file is not read until Resolve.
func NewSource(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Path == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: replay path is required", errors.ErrMissingConfig),
			"replay", "NewSource", "config check")
	}
	cfg.Type = cmp.Or(cfg.Type, "EEG")
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		logger: logger.With("component", "replay", "path", cfg.Path),
	}, nil
}

// Resolve implements stream.Resolver. The recording is announced with the
// configured type; its manifest, when present, supplies the descriptor.
func (s *Source) Resolve(_ context.Context, streamType string) ([]message.Descriptor, error) {
	s.once.Do(func() { s.desc, s.err = s.describe() })
	if s.err != nil {
		return nil, s.err
	}
	if !s.desc.MatchesType(streamType) {
		return nil, nil
	}
	return []message.Descriptor{s.desc}, nil
}

func (s *Source) describe() (message.Descriptor, error) {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return message.Descriptor{}, errors.WrapInvalid(err, "replay", "Resolve", "open recording")
	}
	defer f.Close()

	r, err := file.NewReader(f)
	if err != nil {
		return message.Descriptor{}, err
	}
	channels := r.Channels()

	desc := message.Descriptor{
		SourceID:     "replay-" + strings.TrimSuffix(filepath.Base(s.cfg.Path), filepath.Ext(s.cfg.Path)),
		Name:         filepath.Base(s.cfg.Path),
		Type:         s.cfg.Type,
		ChannelCount: len(channels),
		ChannelNames: channels,
		Hostname:     "localhost",
		CreatedAt:    time.Now(),
	}
	if m, err := file.ReadManifest(s.cfg.Path); err == nil && m.Descriptor != nil {
		desc.Name = m.Descriptor.Name
		desc.NominalRate = m.Descriptor.NominalRate
	} else {
		desc.NominalRate = estimateRate(r)
	}
	return desc, nil
}

// estimateRate derives a nominal rate from the first timestamps of r.
func estimateRate(r *file.Reader) float64 {
	const probe = 256
	var first, last float64
	n := 0
	for n < probe {
		s, err := r.Next()
		if err != nil {
			break
		}
		if n == 0 {
			first = s.Timestamp
		}
		last = s.Timestamp
		n++
	}
	if n < 2 || last <= first {
		return 0
	}
	return float64(n-1) / (last - first)
}

// Open implements stream.Resolver.
func (s *Source) Open(_ context.Context, desc message.Descriptor, _ stream.InletOptions) (stream.Inlet, error) {
	if desc.SourceID != s.desc.SourceID {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown source %q", errors.ErrNoStreamFound, desc.SourceID),
			"replay", "Open", "source lookup")
	}

	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, errors.WrapFatal(err, "replay", "Open", "open recording")
	}
	r, err := file.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	s.tracker.Start()
	s.logger.Info("Replaying recording", "channels", desc.ChannelCount, "realtime", s.cfg.Realtime)
	return &inlet{src: s, f: f, r: r, width: desc.ChannelCount}, nil
}

// Meta implements component.Discoverable.
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        "replay",
		Type:        "input",
		Description: fmt.Sprintf("Replay of %s", s.cfg.Path),
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

type inlet struct {
	src   *Source
	f     *os.File
	r     *file.Reader
	width int

	mu      sync.Mutex
	pending *message.Sample
	eof     bool
	closed  bool

	// readErr is held back while earlier rows are still being delivered.
	readErr error

	// first recorded timestamp and the instant it was delivered
	origin    float64
	started   time.Time
	haveStart bool
}

func (in *inlet) Pull(ctx context.Context, maxSamples int, timeout time.Duration) ([][]float64, []float64, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "replay", "Pull", "read")
	}
	if maxSamples <= 0 {
		return nil, nil, nil
	}

	deadline := time.Now().Add(timeout)
	var samples [][]float64
	var timestamps []float64

	for {
		for len(samples) < maxSamples {
			s, err := in.peek()
			if err != nil {
				if len(samples) > 0 {
					break
				}
				return nil, nil, err
			}
			if s == nil {
				break
			}
			if in.untilDue(s) > 0 {
				break
			}
			samples = append(samples, s.Values)
			timestamps = append(timestamps, s.Timestamp)
			in.pending = nil
		}

		if len(samples) > 0 {
			in.src.tracker.RecordActivity(len(samples), len(samples)*in.width*8)
			return samples, timestamps, nil
		}
		if in.eof {
			in.src.tracker.Stop()
			return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "replay", "Pull", "end of recording")
		}

		next := time.Now().Add(in.untilDue(in.pending))
		if next.After(deadline) {
			next = deadline
		}
		wait := time.Until(next)
		if wait <= 0 {
			return nil, nil, nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, nil, nil
		case <-t.C:
		}
	}
}

// peek returns the next unread sample, or nil at the end of the recording.
func (in *inlet) peek() (*message.Sample, error) {
	if in.readErr != nil {
		return nil, in.readErr
	}
	if in.pending != nil || in.eof {
		return in.pending, nil
	}
	s, err := in.r.Next()
	if stderrors.Is(err, io.EOF) {
		in.eof = true
		return nil, nil
	}
	if err != nil {
		// An interrupted recorder can leave its last row half written.
		if _, next := in.r.Next(); stderrors.Is(next, io.EOF) {
			in.src.logger.Warn("Recording ends in a torn row, replay stops before it", "error", err)
			in.eof = true
			return nil, nil
		}
		in.src.tracker.Fail(err)
		in.readErr = errors.WrapFatal(err, "replay", "Pull", "read row")
		return nil, in.readErr
	}
	in.pending = &s
	return in.pending, nil
}

// untilDue reports how long until s should be delivered.
func (in *inlet) untilDue(s *message.Sample) time.Duration {
	if !in.src.cfg.Realtime {
		return 0
	}
	if !in.haveStart {
		in.origin, in.started, in.haveStart = s.Timestamp, time.Now(), true
		return 0
	}
	return time.Until(in.started.Add(timestamp.Span(in.origin, s.Timestamp)))
}

func (in *inlet) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	in.src.tracker.Stop()
	if err := in.f.Close(); err != nil {
		return errors.Wrap(err, "replay", "Close", "close recording")
	}
	return nil
}
