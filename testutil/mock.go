package testutil

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
)

// Common test errors
var (
	ErrMockFailed  = stderrors.New("mock operation failed")
	ErrMockTimeout = stderrors.New("mock operation timed out")
)

// Pull is one scripted inlet result.
type Pull struct {
	Samples    [][]float64
	Timestamps []float64
	Err        error

	// Hook runs before the pull returns.
	Hook func()
}

// MockInlet returns its scripted pulls in order. Once the script is used
// up it returns empty pulls, or ErrSourceClosed when EndAfterScript is set.
type MockInlet struct {
	mu             sync.Mutex
	script         []Pull
	EndAfterScript bool

	Pulls  int
	Closed int
}

// NewMockInlet creates an inlet that plays script.
func NewMockInlet(script ...Pull) *MockInlet {
	return &MockInlet{script: script}
}

// Append adds pulls to the script.
func (m *MockInlet) Append(p ...Pull) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, p...)
}

// Pull implements stream.Inlet. maxSamples and timeout are ignored; the
// script decides what comes back.
func (m *MockInlet) Pull(ctx context.Context, _ int, _ time.Duration) ([][]float64, []float64, error) {
	m.mu.Lock()
	m.Pulls++
	if m.Closed > 0 {
		m.mu.Unlock()
		return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "MockInlet", "Pull", "read")
	}
	if len(m.script) == 0 {
		end := m.EndAfterScript
		m.mu.Unlock()
		if end {
			return nil, nil, errors.WrapFatal(errors.ErrSourceClosed, "MockInlet", "Pull", "script finished")
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Millisecond):
		}
		return nil, nil, nil
	}
	p := m.script[0]
	m.script = m.script[1:]
	m.mu.Unlock()

	if p.Hook != nil {
		p.Hook()
	}
	return p.Samples, p.Timestamps, p.Err
}

// Close implements stream.Inlet.
func (m *MockInlet) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}

// MockSink records every batch it consumes. FailAfter makes it fail once
// it has seen that many samples.
type MockSink struct {
	mu        sync.Mutex
	batches   []message.Batch
	samples   int
	FailAfter int
	Err       error
	OnConsume func(message.Batch)
}

// Consume implements acquire.Sink.
func (s *MockSink) Consume(batch message.Batch) error {
	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.samples += len(batch)
	fail := s.FailAfter > 0 && s.samples >= s.FailAfter
	hook := s.OnConsume
	s.mu.Unlock()

	if hook != nil {
		hook(batch)
	}
	if fail {
		if s.Err != nil {
			return s.Err
		}
		return ErrMockFailed
	}
	return nil
}

// Samples returns every consumed sample in order.
func (s *MockSink) Samples() []message.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Sample, 0, s.samples)
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

// Batches returns the number of batches consumed.
func (s *MockSink) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// StopFlag is a settable stop flag.
type StopFlag struct {
	mu   sync.Mutex
	stop bool
}

// Set raises the flag.
func (f *StopFlag) Set() {
	f.mu.Lock()
	f.stop = true
	f.mu.Unlock()
}

// Stopping implements acquire.StopFlag.
func (f *StopFlag) Stopping() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stop
}

// WaitFor polls cond until it returns true or timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
