package component

import (
	"sync"
	"sync/atomic"
	"time"
)

// State represents the current lifecycle state of a component
type State int32

const (
	// StateCreated indicates component was created but not started
	StateCreated State = iota
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component hit a fatal error
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tracker keeps the health and flow bookkeeping shared by components.
// Components embed or hold a Tracker and derive Health and DataFlow from it.
// All methods are safe for concurrent use.
type Tracker struct {
	state    atomic.Int32
	samples  atomic.Int64
	bytes    atomic.Int64
	errors   atomic.Int64
	activity atomic.Int64 // unix nanos

	mu        sync.RWMutex
	startTime time.Time
	lastError string
}

// Start marks the component as running and resets its uptime clock.
func (t *Tracker) Start() {
	t.mu.Lock()
	t.startTime = time.Now()
	t.mu.Unlock()
	t.state.Store(int32(StateStarted))
}

// Stop marks the component as stopped unless it already failed.
func (t *Tracker) Stop() {
	t.state.CompareAndSwap(int32(StateStarted), int32(StateStopped))
	t.state.CompareAndSwap(int32(StateCreated), int32(StateStopped))
}

// Fail marks the component as failed with err.
func (t *Tracker) Fail(err error) {
	t.RecordError(err)
	t.state.Store(int32(StateFailed))
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// RecordActivity counts samples and bytes that flowed through the component.
func (t *Tracker) RecordActivity(samples, bytes int) {
	t.samples.Add(int64(samples))
	t.bytes.Add(int64(bytes))
	t.activity.Store(time.Now().UnixNano())
}

// RecordError counts err and remembers its message.
func (t *Tracker) RecordError(err error) {
	if err == nil {
		return
	}
	t.errors.Add(1)
	t.mu.Lock()
	t.lastError = err.Error()
	t.mu.Unlock()
}

// Samples returns the number of samples recorded so far.
func (t *Tracker) Samples() int64 {
	return t.samples.Load()
}

// Errors returns the number of errors recorded so far.
func (t *Tracker) Errors() int64 {
	return t.errors.Load()
}

// Health reports the tracker as a HealthStatus. A component is healthy while
// it is started.
func (t *Tracker) Health() HealthStatus {
	t.mu.RLock()
	start, lastErr := t.startTime, t.lastError
	t.mu.RUnlock()

	var uptime time.Duration
	if !start.IsZero() {
		uptime = time.Since(start)
	}

	return HealthStatus{
		Healthy:    t.State() == StateStarted,
		LastCheck:  time.Now(),
		ErrorCount: int(t.errors.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

// DataFlow reports average rates since Start.
func (t *Tracker) DataFlow() FlowMetrics {
	t.mu.RLock()
	start := t.startTime
	t.mu.RUnlock()

	var fm FlowMetrics
	if last := t.activity.Load(); last > 0 {
		fm.LastActivity = time.Unix(0, last)
	}
	if start.IsZero() {
		return fm
	}

	elapsed := time.Since(start).Seconds()
	if elapsed > 0 {
		samples := float64(t.samples.Load())
		fm.SamplesPerSecond = samples / elapsed
		fm.BytesPerSecond = float64(t.bytes.Load()) / elapsed
		if samples > 0 {
			fm.ErrorRate = float64(t.errors.Load()) / samples
		}
	}
	return fm
}
