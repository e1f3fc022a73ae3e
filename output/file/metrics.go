package file

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/metric"
)

// Metrics holds Prometheus metrics for the recorder
type Metrics struct {
	rowsWritten   prometheus.Counter
	flushes       prometheus.Counter
	flushDuration prometheus.Histogram
	writeErrors   prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "recorder",
			Name:      "rows_written_total",
			Help:      "Rows appended to the recording",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "recorder",
			Name:      "flushes_total",
			Help:      "Durability flushes performed",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "recorder",
			Name:      "flush_duration_seconds",
			Help:      "Time spent flushing and syncing the recording",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "recorder",
			Name:      "write_errors_total",
			Help:      "Failed writes or flushes",
		}),
	}

	if err := registry.RegisterCounter("recorder", "rows_written", m.rowsWritten); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("recorder", "flushes", m.flushes); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("recorder", "flush_duration", m.flushDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("recorder", "write_errors", m.writeErrors); err != nil {
		return nil, err
	}
	return m, nil
}
