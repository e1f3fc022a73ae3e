// Package eegstreams records live EEG streams to disk while showing the most
// recent seconds of signal.
//
// # Architecture
//
// A recording session is a single acquisition loop with two downstream
// sinks and a set of readers on the side:
//
//	source (simulator | udp | nats | replay)
//	    │  stream.Resolver / stream.Inlet
//	    ▼
//	acquire.Acquirer ── pull → normalize → index
//	    │
//	    ├──▶ window.Buffer      time-bounded live window
//	    └──▶ file.Recorder      CSV row store, periodic durability flush
//
//	output/websocket ◀── snapshots of window.Buffer on every redraw tick
//	metric.Server    ◀── /metrics, /health, /live
//
// The loop owns the inlet and is the only writer of the recorder and the
// window. Readers never block it; a slow live view client drops frames
// instead.
//
// # Packages
//
// Session:
//   - engine: connect, record, final flush and close, summary
//   - acquire: chunk pull, width normalization, sample indices, fan-out
//   - shutdown: RUNNING → STOPPING → STOPPED controller driven by signals
//
// Sources:
//   - stream: resolver and inlet contracts, channel naming, inlet queue
//   - input/simulator: in-process synthetic Muse-like stream
//   - input/udp: announced streams over UDP datagrams
//   - input/nats: descriptors in a JetStream KV bucket, chunks on subjects
//   - input/replay: an earlier recording played back as a stream
//
// Sinks and views:
//   - window: sliding window pruned against the latest sample timestamp
//   - output/file: CSV recorder, manifest sidecar and reader
//   - output/websocket: live view frames with autoscaled axes
//
// Infrastructure:
//   - config: layered JSON/YAML configuration with environment overrides
//   - errors: classified errors and operator remediation hints
//   - metric, health, component: Prometheus metrics, health aggregation and
//     component lifecycle tracking
//   - natsclient: NATS connection, JetStream KV and test containers
//   - message: samples, descriptors and the msgpack wire format
//   - pkg/buffer, pkg/retry, pkg/timestamp: shared building blocks
//
// # Binaries
//
// cmd/eegstreams is the recorder:
//
//	eegstreams --transport=udp -o Data
//	eegstreams -c config.yaml --validate
//
// cmd/eegsim publishes a synthetic stream for the recorder to find:
//
//	eegsim --transport=udp --addr=127.0.0.1:16571 --rate=256
//
// # Durability
//
// Every row is appended in arrival order. The recorder flushes, and by
// default fsyncs, every 512 rows and always on close, so an interrupted
// session loses at most the rows since the last flush. Write failures are
// fatal; the rows already flushed stay on disk.
package eegstreams
