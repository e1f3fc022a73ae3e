package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/metric"
)

// engineMetrics holds Prometheus metrics for recording sessions.
type engineMetrics struct {
	sessions        *prometheus.CounterVec // by outcome
	connectDuration prometheus.Histogram
	closeDuration   prometheus.Histogram
	sessionDuration prometheus.Histogram
	activeSessions  prometheus.Gauge
}

// newEngineMetrics creates and registers session metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "session",
			Name:      "sessions_total",
			Help:      "Recording sessions by outcome",
		}, []string{"outcome"}), // outcome: stopped, source_closed, failed

		connectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "session",
			Name:      "connect_duration_seconds",
			Help:      "Time from start until the stream was resolved and opened",
			Buckets:   []float64{0.01, 0.1, 0.5, 1.0, 2.0, 5.0, 15.0},
		}),

		closeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "session",
			Name:      "close_duration_seconds",
			Help:      "Final flush and close duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0},
		}),

		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Recording session length in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently recording",
		}),
	}

	if err := registry.RegisterCounterVec("session", "sessions", m.sessions); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("session", "connect_duration", m.connectDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("session", "close_duration", m.closeDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("session", "duration", m.sessionDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("session", "active", m.activeSessions); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *engineMetrics) recordConnect(seconds float64) {
	if m == nil {
		return
	}
	m.connectDuration.Observe(seconds)
	m.activeSessions.Inc()
}

// recordEnd records how a connected session finished.
func (m *engineMetrics) recordEnd(outcome string, closeSeconds, sessionSeconds float64) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
	m.closeDuration.Observe(closeSeconds)
	m.sessionDuration.Observe(sessionSeconds)
	m.activeSessions.Dec()
}

// recordFailedStart counts a session that never connected.
func (m *engineMetrics) recordFailedStart() {
	if m != nil {
		m.sessions.WithLabelValues(outcomeFailed).Inc()
	}
}
