// Package nats provides a stream transport over NATS. Sources register
// their descriptor in a JetStream key-value bucket and publish msgpack
// chunks on a per-source subject.
package nats

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eegstreams/component"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/natsclient"
	"github.com/c360/eegstreams/stream"
)

// DefaultBucket is the key-value bucket holding stream descriptors.
const DefaultBucket = "EEG_STREAMS"

// SubjectFor returns the chunk subject of a source.
func SubjectFor(sourceID string) string {
	return "eeg.streams." + KeyFor(sourceID) + ".chunks"
}

// KeyFor maps a source id onto the key-value key alphabet.
func KeyFor(sourceID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, sourceID)
}

// Deps holds runtime dependencies for the resolver
type Deps struct {
	Client          *natsclient.Client
	Bucket          string
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Resolver lists descriptors from the bucket and subscribes to chunks.
type Resolver struct {
	client   *natsclient.Client
	kv       *natsclient.KVStore
	registry *metric.MetricsRegistry
	logger   *slog.Logger
	tracker  component.Tracker

	chunksReceived prometheus.Counter
	decodeErrors   prometheus.Counter

	mu     sync.Mutex
	inlets map[string]*stream.Queue
}

var (
	_ stream.Resolver        = (*Resolver)(nil)
	_ component.Discoverable = (*Resolver)(nil)
)

// NewResolver opens (or creates) the descriptor bucket on a connected client.
func NewResolver(ctx context.Context, deps Deps) (*Resolver, error) {
	if deps.Client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "nats", "NewResolver", "client check")
	}
	bucketName := cmp.Or(deps.Bucket, DefaultBucket)

	bucket, err := deps.Client.KeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "EEG stream descriptors",
	})
	if err != nil {
		return nil, errors.Wrap(err, "nats", "NewResolver", "open descriptor bucket")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{
		client:   deps.Client,
		kv:       natsclient.NewKVStore(bucket, 5*time.Second),
		registry: deps.MetricsRegistry,
		logger:   logger.With("component", "nats", "bucket", bucketName),
		inlets:   make(map[string]*stream.Queue),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "chunks_received_total",
			Help:      "Sample chunks received from NATS",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "nats",
			Name:      "decode_errors_total",
			Help:      "NATS messages that could not be decoded",
		}),
	}

	if reg := deps.MetricsRegistry; reg != nil {
		if err := reg.RegisterCounter("nats", "chunks_received", r.chunksReceived); err != nil {
			return nil, errors.WrapTransient(err, "nats", "NewResolver", "metrics registration")
		}
		if err := reg.RegisterCounter("nats", "decode_errors", r.decodeErrors); err != nil {
			return nil, errors.WrapTransient(err, "nats", "NewResolver", "metrics registration")
		}
	}

	r.tracker.Start()
	return r, nil
}

// Resolve implements stream.Resolver. Streams are listed oldest first;
// entries that fail to decode are skipped.
func (r *Resolver) Resolve(ctx context.Context, streamType string) ([]message.Descriptor, error) {
	keys, err := r.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "nats", "Resolve", "list descriptors")
	}

	var out []message.Descriptor
	for _, key := range keys {
		entry, err := r.kv.Get(ctx, key)
		if err != nil {
			if natsclient.IsKVNotFoundError(err) {
				continue
			}
			return nil, errors.WrapTransient(err, "nats", "Resolve", "read descriptor")
		}
		desc, err := message.UnmarshalDescriptor(entry.Value)
		if err != nil {
			r.logger.Warn("Skipping malformed descriptor", "key", key, "error", err)
			continue
		}
		if desc.MatchesType(streamType) {
			out = append(out, desc)
		}
	}

	slices.SortFunc(out, func(a, b message.Descriptor) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SourceID, b.SourceID)
	})
	return out, nil
}

// Open implements stream.Resolver.
func (r *Resolver) Open(_ context.Context, desc message.Descriptor, opts stream.InletOptions) (stream.Inlet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, open := r.inlets[desc.SourceID]; open {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: inlet for %q", errors.ErrAlreadyStarted, desc.SourceID),
			"nats", "Open", "inlet check")
	}

	subject := cmp.Or(desc.Subject, SubjectFor(desc.SourceID))
	sourceID := desc.SourceID

	var unsubscribe func() error
	q, err := stream.NewQueue(stream.QueueCapacity(opts.MaxBuffered, desc.NominalRate),
		stream.WithQueueMetrics(r.registry, "inlet"),
		stream.WithOnClose(func() error {
			r.mu.Lock()
			delete(r.inlets, sourceID)
			r.mu.Unlock()
			if unsubscribe != nil {
				return unsubscribe()
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	var lastSeq uint64
	haveSeq := false
	sub, err := r.client.Subscribe(subject, func(data []byte) {
		p, err := message.DecodePacket(data)
		if err != nil {
			r.decodeErrors.Inc()
			r.tracker.RecordError(err)
			return
		}
		switch p.Kind {
		case message.KindGoodbye:
			r.logger.Info("Stream said goodbye", "source_id", sourceID)
			q.EndOfStream()
		case message.KindChunk:
			if haveSeq && p.Chunk.Seq > lastSeq+1 {
				r.logger.Warn("Chunks missing from stream", "source_id", sourceID, "missing", p.Chunk.Seq-lastSeq-1)
			}
			lastSeq, haveSeq = p.Chunk.Seq, true

			r.chunksReceived.Inc()
			unpaired, err := q.PushChunk(p.Chunk.Timestamps, p.Chunk.Samples)
			if err != nil {
				return
			}
			if unpaired > 0 {
				r.logger.Warn("Chunk has mismatched sample and timestamp counts",
					"source_id", sourceID, "samples", len(p.Chunk.Samples), "timestamps", len(p.Chunk.Timestamps))
			}
			r.tracker.RecordActivity(min(len(p.Chunk.Samples), len(p.Chunk.Timestamps)), len(data))
		}
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "nats", "Open", "subscribe")
	}
	unsubscribe = sub.Unsubscribe

	r.inlets[sourceID] = q
	r.logger.Info("Subscribed to stream", "source_id", sourceID, "subject", subject)
	return q, nil
}

// Meta implements component.Discoverable.
func (r *Resolver) Meta() component.Metadata {
	return component.Metadata{
		Name:        "nats",
		Type:        "input",
		Description: fmt.Sprintf("NATS stream transport at %s", r.client.URL()),
		Version:     "1.0.0",
	}
}

// Health implements component.Discoverable. The resolver is healthy while
// its connection is.
func (r *Resolver) Health() component.HealthStatus {
	h := r.tracker.Health()
	h.Healthy = h.Healthy && r.client.IsHealthy()
	return h
}

// DataFlow implements component.Discoverable.
func (r *Resolver) DataFlow() component.FlowMetrics {
	return r.tracker.DataFlow()
}
