package acquire

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/metric"
)

// Metrics holds Prometheus metrics for the acquisition loop
type Metrics struct {
	samples      prometheus.Counter
	chunks       prometheus.Counter
	emptyPulls   prometheus.Counter
	malformed    prometheus.Counter
	unpaired     prometheus.Counter
	pullErrors   *prometheus.CounterVec
	pullDuration prometheus.Histogram
	chunkSize    prometheus.Histogram
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "acquire",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		samples:    counter("samples_total", "Samples acquired from the stream"),
		chunks:     counter("chunks_total", "Non-empty pulls"),
		emptyPulls: counter("empty_pulls_total", "Pulls that returned no samples"),
		malformed:  counter("malformed_samples_total", "Samples padded or truncated to the channel count"),
		unpaired:   counter("unpaired_samples_total", "Samples or timestamps dropped for lack of a partner"),
		pullErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "acquire",
			Name:      "pull_errors_total",
			Help:      "Pull errors by class",
		}, []string{"class"}),
		pullDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "acquire",
			Name:      "pull_duration_seconds",
			Help:      "Time spent in a single pull",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		chunkSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "acquire",
			Name:      "chunk_size",
			Help:      "Samples per non-empty pull",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	for name, c := range map[string]prometheus.Counter{
		"samples":   m.samples,
		"chunks":    m.chunks,
		"empty":     m.emptyPulls,
		"malformed": m.malformed,
		"unpaired":  m.unpaired,
	} {
		if err := registry.RegisterCounter("acquire", name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterCounterVec("acquire", "pull_errors", m.pullErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("acquire", "pull_duration", m.pullDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("acquire", "chunk_size", m.chunkSize); err != nil {
		return nil, err
	}
	return m, nil
}
