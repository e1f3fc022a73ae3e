package udp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/metric"
)

// Metrics holds Prometheus metrics for the UDP transport
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	decodeErrors    prometheus.Counter
	sequenceGaps    prometheus.Counter
	unpairedSamples prometheus.Counter
	socketErrors    prometheus.Counter
	knownStreams    prometheus.Gauge
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers UDP metrics. A nil registry disables them.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "udp",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		packetsReceived: counter("packets_received_total", "Total UDP packets received"),
		bytesReceived:   counter("bytes_received_total", "Total bytes received from UDP"),
		decodeErrors:    counter("decode_errors_total", "Datagrams that could not be decoded"),
		sequenceGaps:    counter("sequence_gaps_total", "Chunks missing between consecutive sequence numbers"),
		unpairedSamples: counter("unpaired_samples_total", "Samples or timestamps without a partner in a chunk"),
		socketErrors:    counter("socket_errors_total", "Socket read errors encountered"),
		knownStreams:    gauge("known_streams", "Streams currently announced on the socket"),
		lastActivity:    gauge("last_activity_timestamp", "Unix timestamp of last received packet"),
	}

	const service = "udp"
	for name, c := range map[string]prometheus.Counter{
		"packets_received": m.packetsReceived,
		"bytes_received":   m.bytesReceived,
		"decode_errors":    m.decodeErrors,
		"sequence_gaps":    m.sequenceGaps,
		"unpaired_samples": m.unpairedSamples,
		"socket_errors":    m.socketErrors,
	} {
		if err := registry.RegisterCounter(service, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(service, "known_streams", m.knownStreams); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(service, "last_activity", m.lastActivity); err != nil {
		return nil, err
	}
	return m, nil
}
