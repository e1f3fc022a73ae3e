// Package shutdown coordinates a cooperative stop of the acquisition loop.
//
// A Controller moves RUNNING -> STOPPING -> STOPPED and never back. Signals
// only request the stop; the loop notices at its next check, the recorder
// is flushed and closed, and only then is MarkStopped called.
package shutdown

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/c360/eegstreams/metric"
)

// State is the controller state. Values match the session state gauge.
type State int32

// Controller states
const (
	StateRunning  State = 1
	StateStopping State = 2
	StateStopped  State = 3
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Controller tracks the session's stop state. It is safe for concurrent use.
type Controller struct {
	state   atomic.Int32
	logger  *slog.Logger
	metrics *metric.Metrics

	mu       sync.Mutex
	reason   string
	stopping chan struct{}
	done     chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics reports state changes on the session state gauge.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New returns a controller in the RUNNING state.
func New(opts ...Option) *Controller {
	c := &Controller{
		logger:   slog.Default(),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "shutdown")
	c.setState(StateRunning)
	return c
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.RecordSessionState(int(s))
	}
}

// Notify requests a stop when one of signals arrives, SIGINT and SIGTERM
// when none are given. The returned func stops listening.
func (c *Controller) Notify(signals ...os.Signal) (cancel func()) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	quit := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if !c.RequestStop("signal " + sig.String()) {
					c.logger.Info("Already stopping, flushing recording", "signal", sig.String())
				}
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}

// RequestStop moves RUNNING to STOPPING. It reports whether this call made
// the transition; later requests are no-ops.
func (c *Controller) RequestStop(reason string) bool {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}
	if c.metrics != nil {
		c.metrics.RecordSessionState(int(StateStopping))
	}

	c.mu.Lock()
	c.reason = reason
	close(c.stopping)
	c.mu.Unlock()

	c.logger.Info("Stop requested", "reason", reason)
	return true
}

// Stopping reports whether a stop was requested.
func (c *Controller) Stopping() bool {
	return c.State() != StateRunning
}

// StopRequested is closed when the controller leaves RUNNING.
func (c *Controller) StopRequested() <-chan struct{} {
	return c.stopping
}

// MarkStopped records that the session's resources are released. It moves
// to STOPPED from either state and closes Done.
func (c *Controller) MarkStopped() {
	c.RequestStop("session finished")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateStopped {
		return
	}
	c.setState(StateStopped)
	close(c.done)
	c.logger.Debug("Session stopped", "reason", c.reason)
}

// Done is closed once MarkStopped has been called.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Reason returns why the stop was requested, or "" while running.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
