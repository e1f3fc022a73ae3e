package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/metric"
)

// Metrics holds Prometheus metrics for the live view
type Metrics struct {
	frames         prometheus.Counter
	framesDropped  prometheus.Counter
	clients        prometheus.Gauge
	renderDuration prometheus.Histogram
	errors         *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "liveview",
			Name:      "frames_total",
			Help:      "Frames rendered",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "liveview",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped for slow clients",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "liveview",
			Name:      "clients",
			Help:      "Connected live view clients",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "liveview",
			Name:      "render_duration_seconds",
			Help:      "Time to snapshot, render and encode a frame",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "liveview",
			Name:      "errors_total",
			Help:      "Live view errors by kind",
		}, []string{"kind"}),
	}

	if err := registry.RegisterCounter("liveview", "frames", m.frames); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("liveview", "frames_dropped", m.framesDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("liveview", "clients", m.clients); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("liveview", "render_duration", m.renderDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("liveview", "errors", m.errors); err != nil {
		return nil, err
	}
	return m, nil
}
