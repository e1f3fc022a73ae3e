package engine

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/eegstreams/acquire"
	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/config"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/health"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/output/file"
	liveview "github.com/c360/eegstreams/output/websocket"
	"github.com/c360/eegstreams/shutdown"
	"github.com/c360/eegstreams/stream"
	"github.com/c360/eegstreams/window"
)

// Session state gauge values not covered by shutdown.State.
const (
	stateConnecting = 0
	stateFailed     = 4
)

// Session outcomes
const (
	outcomeStopped      = "stopped"
	outcomeSourceClosed = "source_closed"
	outcomeFailed       = "failed"
)

// Options carries runtime dependencies for Run. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// MetricsRegistry collects every component's metrics. Nil creates one.
	MetricsRegistry *metric.MetricsRegistry

	// Resolver replaces the source selected by stream.transport.
	Resolver stream.Resolver

	// Controller is the stop flag. Nil creates one that listens for SIGINT
	// and SIGTERM.
	Controller *shutdown.Controller

	// Banner receives the connection banner. Nil is os.Stdout.
	Banner io.Writer
}

// Summary describes a finished session.
type Summary struct {
	SessionID string
	Stream    message.Descriptor
	Channels  []string
	Path      string
	Rows      uint64
	Produced  uint64
	Malformed uint64
	Started   time.Time
	Duration  time.Duration
	Reason    string
}

// String is the line printed when the process exits.
func (s Summary) String() string {
	if s.Path == "" {
		return "No recording was written"
	}
	return fmt.Sprintf("Saved %d rows to %s", s.Rows, s.Path)
}

// Run records one session: resolve and open the stream, then acquire into
// the live window and the recording until a stop is requested, ctx is
// cancelled, the source closes or a write fails. The recording is flushed
// and closed on every path that opened it, and the Summary is valid even
// when an error is returned.
func Run(ctx context.Context, cfg *config.Config, opts Options) (Summary, error) {
	base := cmp.Or(opts.Logger, slog.Default())
	logger := base.With("component", "engine")
	registry := opts.MetricsRegistry
	if registry == nil {
		registry = metric.NewMetricsRegistry()
	}
	core := registry.CoreMetrics()
	banner := opts.Banner
	if banner == nil {
		banner = os.Stdout
	}

	summary := Summary{Started: time.Now()}

	metrics, err := newEngineMetrics(registry)
	if err != nil {
		return summary, errors.WrapTransient(err, "engine", "Run", "metrics registration")
	}

	ctrl := opts.Controller
	if ctrl == nil {
		ctrl = shutdown.New(shutdown.WithLogger(base), shutdown.WithMetrics(core))
		cancelSignals := ctrl.Notify()
		defer cancelSignals()
	}
	core.RecordSessionState(stateConnecting)

	resolver := opts.Resolver
	if resolver == nil {
		src, err := openSource(ctx, cfg, registry, base)
		if err != nil {
			metrics.recordFailedStart()
			core.RecordSessionState(stateFailed)
			return summary, err
		}
		defer src.release()
		resolver = src.resolver
	}

	// A stop request while waiting for the stream abandons the wait.
	connectCtx, cancelConnect := context.WithCancel(ctx)
	go func() {
		select {
		case <-ctrl.StopRequested():
			cancelConnect()
		case <-connectCtx.Done():
		}
	}()
	conn, err := stream.Connect(connectCtx, resolver, stream.Options{
		Type:         cfg.Stream.Type,
		Timeout:      cfg.Stream.ResolveTimeout.Std(),
		MinChannels:  cfg.Stream.MinChannels,
		ChannelNames: cfg.Stream.ChannelNames,
		NamePolicy:   cfg.Stream.NamePolicy,
		MaxBuffered:  cfg.Stream.MaxBuffered.Std(),
		Logger:       base,
	})
	cancelConnect()
	if err != nil {
		if ctrl.Stopping() && ctx.Err() == nil {
			summary.Reason = ctrl.Reason()
			summary.Duration = time.Since(summary.Started)
			ctrl.MarkStopped()
			logger.Info("Stopped before a stream was found", "reason", summary.Reason)
			return summary, nil
		}
		metrics.recordFailedStart()
		core.RecordSessionState(stateFailed)
		return summary, err
	}
	defer func() { _ = conn.Close() }()
	metrics.recordConnect(time.Since(summary.Started).Seconds())

	summary.Stream = conn.Descriptor
	summary.Channels = conn.Channels.Names()

	sess, err := newSession(cfg, conn, registry, base)
	if err != nil {
		metrics.recordEnd(outcomeFailed, 0, time.Since(summary.Started).Seconds())
		core.RecordSessionState(stateFailed)
		return summary, err
	}
	summary.SessionID = sess.rec.SessionID()
	summary.Path = sess.rec.Path()
	logger = logger.With("session_id", summary.SessionID)

	monitor := health.NewMonitor("eegstreams")
	if d, ok := resolver.(component.Discoverable); ok {
		monitor.Register(d)
	}
	monitor.Register(sess.acq, sess.rec)

	auxCtx, stopAux := context.WithCancel(ctx)
	defer stopAux()
	aux, liveURL := sess.startAux(auxCtx, cfg, registry, monitor, logger)

	printBanner(banner, conn, summary.Path, liveURL)
	core.RecordSessionState(int(shutdown.StateRunning))
	monitor.Update("session", health.NewHealthy("session", "recording"))
	logger.Info("Recording started", "path", summary.Path, "stream", conn.Descriptor.Name)

	runErr := sess.acq.Run(ctx, ctrl, sess.win, sess.rec)

	outcome := outcomeStopped
	switch {
	case runErr == nil && ctrl.Stopping():
		summary.Reason = ctrl.Reason()
	case runErr == nil:
		summary.Reason = "context cancelled"
	case stderrors.Is(runErr, errors.ErrSourceClosed):
		summary.Reason = "source closed"
		outcome = outcomeSourceClosed
	default:
		summary.Reason = "failed: " + runErr.Error()
		outcome = outcomeFailed
	}
	ctrl.RequestStop(summary.Reason)
	monitor.Update("session", health.NewDegraded("session", "stopping"))

	closeStart := time.Now()
	closeErr := sess.rec.Close()
	if closeErr != nil && runErr == nil {
		runErr = closeErr
		outcome = outcomeFailed
	} else if closeErr != nil {
		logger.Error("Final flush failed", "error", closeErr)
	}
	closeSeconds := time.Since(closeStart).Seconds()

	stopAux()
	if err := aux.Wait(); err != nil {
		logger.Warn("Auxiliary services stopped with error", "error", err)
	}

	summary.Rows = sess.rec.Rows()
	summary.Produced = sess.acq.Produced()
	summary.Malformed = sess.acq.Malformed()
	summary.Duration = time.Since(summary.Started)

	ctrl.MarkStopped()
	metrics.recordEnd(outcome, closeSeconds, summary.Duration.Seconds())
	if outcome == outcomeFailed {
		core.RecordSessionState(stateFailed)
	}

	logger.Info("Recording finished",
		"reason", summary.Reason,
		"rows", summary.Rows,
		"produced", summary.Produced,
		"malformed", summary.Malformed,
		"path", summary.Path,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary, runErr
}

// session holds the components built once the stream is open.
type session struct {
	channels []string
	win      *window.Buffer
	rec      *file.Recorder
	acq      *acquire.Acquirer
}

func newSession(cfg *config.Config, conn *stream.Connection, registry *metric.MetricsRegistry, logger *slog.Logger) (*session, error) {
	wm, err := window.NewMetrics(registry)
	if err != nil {
		return nil, errors.WrapTransient(err, "engine", "newSession", "window metrics")
	}
	win := window.New(cfg.Window.Duration.Std(), conn.Channels.Count(), window.WithMetrics(wm))

	rec, err := file.Open(file.Config{
		Directory:  cfg.Recorder.Directory,
		Filename:   cfg.Recorder.Filename,
		FlushEvery: cfg.Recorder.FlushEvery,
		Sync:       cfg.Recorder.Sync,
		Manifest:   cfg.Recorder.Manifest,
	}, file.Header(conn.Channels.Names()),
		file.WithLogger(logger),
		file.WithMetrics(registry),
		file.WithDescriptor(conn.Descriptor))
	if err != nil {
		return nil, err
	}

	acq, err := acquire.New(acquire.Config{
		ChunkSize:   cfg.Acquisition.ChunkSize,
		PullTimeout: cfg.Acquisition.PullTimeout.Std(),
	}, acquire.Deps{
		Inlet:           conn.Inlet,
		Channels:        conn.Channels.Count(),
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		_ = rec.Close()
		return nil, err
	}
	return &session{channels: conn.Channels.Names(), win: win, rec: rec, acq: acq}, nil
}

// startAux runs the metrics, health and live view server. It never blocks
// acquisition; a failure is logged and only stops the auxiliary services.
// An empty http.addr disables them.
func (s *session) startAux(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*errgroup.Group, string) {
	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTP.Addr == "" {
		return g, ""
	}

	lcfg := liveview.DefaultConfig()
	lcfg.RedrawInterval = cfg.Window.RedrawInterval.Std()
	lcfg.MinAutoscaleSamples = cfg.Window.MinAutoscaleSamples
	lv, err := liveview.New(lcfg, liveview.Deps{
		Window:          s.win,
		Channels:        s.channels,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		logger.Warn("Live view disabled", "error", err)
		return g, ""
	}
	monitor.Register(lv)

	srv := metric.NewServer(cfg.HTTP.Addr, "/metrics", registry)
	srv.Handle("/health", health.Handler(monitor))
	h := lv.Handler()
	srv.Handle(lv.Path(), h)
	srv.Handle(lv.Path()+"/", h)

	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			logger.Error("HTTP server failed", "addr", cfg.HTTP.Addr, "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error { return lv.Run(gctx) })

	return g, "http://" + displayAddr(cfg.HTTP.Addr) + lv.Path()
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func printBanner(w io.Writer, conn *stream.Connection, path, liveURL string) {
	d := conn.Descriptor
	_, _ = fmt.Fprintf(w, "Connected to %s (%s): %d channels at %g Hz\n",
		d.Name, d.Type, conn.Channels.Count(), conn.Channels.Rate())
	_, _ = fmt.Fprintf(w, "Channels: %s\n", strings.Join(conn.Channels.Names(), ", "))
	_, _ = fmt.Fprintf(w, "Recording to %s\n", path)
	if liveURL != "" {
		_, _ = fmt.Fprintf(w, "Live view: %s\n", liveURL)
	}
	_, _ = fmt.Fprintln(w, "Press Ctrl+C to stop.")
}
