package file

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
)

// Config holds configuration for the recorder
type Config struct {
	Directory  string
	Filename   string
	FlushEvery int
	Sync       bool
	Manifest   bool
}

// DefaultConfig returns the recorder defaults
func DefaultConfig() Config {
	return Config{
		Directory:  "Data",
		Filename:   "recording.csv",
		FlushEvery: 512,
		Sync:       true,
		Manifest:   true,
	}
}

// Path returns the recording path.
func (c Config) Path() string {
	return filepath.Join(c.Directory, c.Filename)
}

type options struct {
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	descriptor *message.Descriptor
}

// Option configures a Recorder
type Option func(*options)

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics registers recorder metrics on registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithDescriptor records the source descriptor in the manifest.
func WithDescriptor(desc message.Descriptor) Option {
	return func(o *options) { o.descriptor = &desc }
}

// Recorder writes one session to a CSV file.
type Recorder struct {
	path       string
	header     []string
	width      int
	flushEvery int
	sync       bool

	logger  *slog.Logger
	metrics *Metrics
	tracker component.Tracker

	mu         sync.Mutex
	file       *os.File
	w          *csv.Writer
	row        []string
	rows       uint64
	sinceFlush int
	closed     bool
	failed     error
	manifest   *Manifest
}

var _ component.Discoverable = (*Recorder)(nil)

// Open creates (or truncates) the recording, writes header and flushes it.
// header must start with the fixed columns returned by Header.
func Open(cfg Config, header []string, opts ...Option) (*Recorder, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Filename == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: filename is required", errors.ErrInvalidConfig),
			"recorder", "Open", "config check")
	}
	if len(header) < len(fixedColumns) || !slices.Equal(header[:len(fixedColumns)], fixedColumns) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: header must start with %v", errors.ErrInvalidConfig, fixedColumns),
			"recorder", "Open", "header check")
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = DefaultConfig().FlushEvery
	}

	metrics, err := newMetrics(o.registry)
	if err != nil {
		return nil, errors.WrapTransient(err, "recorder", "Open", "metrics registration")
	}

	path := cfg.Path()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Persistence(err, "recorder", "Open", "create output directory")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Persistence(err, "recorder", "Open", "open output file")
	}

	r := &Recorder{
		path:       path,
		header:     slices.Clone(header),
		width:      len(header) - len(fixedColumns),
		flushEvery: cfg.FlushEvery,
		sync:       cfg.Sync,
		metrics:    metrics,
		file:       f,
		w:          csv.NewWriter(f),
		row:        make([]string, 0, len(header)),
	}

	sessionID := uuid.NewString()
	r.logger = o.logger.With("component", "recorder", "session_id", sessionID, "path", path)

	if err := r.w.Write(r.header); err != nil {
		_ = f.Close()
		return nil, errors.Persistence(err, "recorder", "Open", "write header")
	}
	if err := r.flushLocked(); err != nil {
		_ = f.Close()
		return nil, errors.Persistence(err, "recorder", "Open", "flush header")
	}

	if cfg.Manifest {
		r.manifest = &Manifest{
			SessionID:  sessionID,
			Path:       path,
			Descriptor: o.descriptor,
			Channels:   slices.Clone(header[len(fixedColumns):]),
			StartedAt:  time.Now(),
		}
		if err := writeManifest(path+ManifestSuffix, *r.manifest); err != nil {
			_ = f.Close()
			return nil, errors.Persistence(err, "recorder", "Open", "write manifest")
		}
	}

	r.tracker.Start()
	r.logger.Info("Recording started", "channels", r.width, "flush_every", r.flushEvery, "sync", r.sync)
	return r, nil
}

// Path returns the output path.
func (r *Recorder) Path() string {
	return r.path
}

// Header returns the header row.
func (r *Recorder) Header() []string {
	return slices.Clone(r.header)
}

// SessionID returns the manifest session id, or "" when the manifest is
// disabled.
func (r *Recorder) SessionID() string {
	if r.manifest == nil {
		return ""
	}
	return r.manifest.SessionID
}

// Rows returns the number of rows appended so far.
func (r *Recorder) Rows() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Append writes one row. Values beyond the header are dropped and missing
// ones are written as NaN so every row has the header's width.
func (r *Recorder) Append(s message.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(s)
}

// Consume appends every sample of batch in order.
func (r *Recorder) Consume(batch message.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range batch {
		if err := r.appendLocked(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) appendLocked(s message.Sample) error {
	if err := r.usableLocked("Append"); err != nil {
		return err
	}

	r.row = formatRow(r.row, s, r.width)
	if err := r.w.Write(r.row); err != nil {
		return r.failLocked(err, "Append", "write row")
	}
	r.rows++
	r.sinceFlush++
	r.tracker.RecordActivity(1, 0)
	if r.metrics != nil {
		r.metrics.rowsWritten.Inc()
	}

	if r.sinceFlush >= r.flushEvery {
		if err := r.flushLocked(); err != nil {
			return r.failLocked(err, "Append", "durability flush")
		}
	}
	return nil
}

// Flush makes every appended row durable.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usableLocked("Flush"); err != nil {
		return err
	}
	if err := r.flushLocked(); err != nil {
		return r.failLocked(err, "Flush", "flush")
	}
	return nil
}

func (r *Recorder) usableLocked(method string) error {
	if r.failed != nil {
		return r.failed
	}
	if r.closed {
		return errors.Persistence(errors.ErrAlreadyStopped, "recorder", method, "recorder closed")
	}
	return nil
}

func (r *Recorder) flushLocked() error {
	start := time.Now()
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return err
	}
	if r.sync {
		if err := r.file.Sync(); err != nil {
			return err
		}
	}
	r.sinceFlush = 0
	if r.metrics != nil {
		r.metrics.flushes.Inc()
		r.metrics.flushDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (r *Recorder) failLocked(err error, method, action string) error {
	r.failed = errors.Persistence(err, "recorder", method, action)
	r.tracker.Fail(r.failed)
	if r.metrics != nil {
		r.metrics.writeErrors.Inc()
	}
	r.logger.Error("Recording failed", "rows", r.rows, "error", err)
	return r.failed
}

// Close flushes outstanding rows and closes the file. Only the first call
// does anything; later calls return nil.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.failed == nil {
		if err := r.flushLocked(); err != nil {
			errs = append(errs, r.failLocked(err, "Close", "final flush"))
		}
	}
	if err := r.file.Close(); err != nil && r.failed == nil {
		errs = append(errs, errors.Persistence(err, "recorder", "Close", "close file"))
	}

	if r.manifest != nil {
		stopped := time.Now()
		r.manifest.StoppedAt = &stopped
		r.manifest.Rows = r.rows
		if err := writeManifest(r.path+ManifestSuffix, *r.manifest); err != nil {
			errs = append(errs, errors.Persistence(err, "recorder", "Close", "write manifest"))
		}
	}

	r.tracker.Stop()
	r.logger.Info("Recording closed", "rows", r.rows)
	return stderrors.Join(errs...)
}

// Meta implements component.Discoverable.
func (r *Recorder) Meta() component.Metadata {
	return component.Metadata{
		Name:        "recorder",
		Type:        "output",
		Description: fmt.Sprintf("CSV recording to %s", r.path),
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable.
func (r *Recorder) Health() component.HealthStatus {
	return r.tracker.Health()
}

// DataFlow implements component.Discoverable.
func (r *Recorder) DataFlow() component.FlowMetrics {
	return r.tracker.DataFlow()
}
