package buffer

import (
	"github.com/c360/eegstreams/metric"
)

// Option configures a CircularBuffer.
type Option[T any] func(*settings[T])

type settings[T any] struct {
	onDrop    func(T)
	registry  *metric.MetricsRegistry
	component string
}

// WithMetrics exports the buffer's counters under the given component
// label. Nothing is registered when registry is nil or component is empty.
func WithMetrics[T any](registry *metric.MetricsRegistry, component string) Option[T] {
	return func(s *settings[T]) {
		if registry == nil || component == "" {
			return
		}
		s.registry, s.component = registry, component
	}
}

// OnDrop is called, outside the buffer lock, with every item evicted to make
// room for a newer one.
func OnDrop[T any](fn func(item T)) Option[T] {
	return func(s *settings[T]) { s.onDrop = fn }
}

func collect[T any](opts []Option[T]) *settings[T] {
	s := &settings[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}
