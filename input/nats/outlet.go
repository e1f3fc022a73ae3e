package nats

import (
	"cmp"
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/natsclient"
)

// Outlet publishes one stream over NATS.
type Outlet struct {
	client *natsclient.Client
	kv     *natsclient.KVStore
	desc   message.Descriptor

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// NewOutlet registers desc in bucket and returns an outlet publishing on
// its chunk subject.
func NewOutlet(ctx context.Context, client *natsclient.Client, bucketName string, desc message.Descriptor) (*Outlet, error) {
	if desc.Subject == "" {
		desc.Subject = SubjectFor(desc.SourceID)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	bucket, err := client.KeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cmp.Or(bucketName, DefaultBucket),
		Description: "EEG stream descriptors",
	})
	if err != nil {
		return nil, errors.Wrap(err, "nats", "NewOutlet", "open descriptor bucket")
	}

	o := &Outlet{
		client: client,
		kv:     natsclient.NewKVStore(bucket, 5*time.Second),
		desc:   desc,
	}
	if err := o.Announce(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// Descriptor returns the registered descriptor.
func (o *Outlet) Descriptor() message.Descriptor {
	return o.desc
}

// Announce writes the descriptor to the bucket.
func (o *Outlet) Announce(ctx context.Context) error {
	data, err := message.MarshalDescriptor(o.desc)
	if err != nil {
		return err
	}
	if _, err := o.kv.Put(ctx, KeyFor(o.desc.SourceID), data); err != nil {
		return errors.WrapTransient(err, "nats", "Outlet.Announce", "register descriptor")
	}
	return nil
}

// Send publishes one chunk.
func (o *Outlet) Send(ctx context.Context, timestamps []float64, samples [][]float64) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "nats", "Outlet.Send", "outlet closed")
	}
	seq := o.seq
	o.seq++
	o.mu.Unlock()

	data, err := message.EncodePacket(message.ChunkPacket(message.Chunk{
		SourceID:   o.desc.SourceID,
		Seq:        seq,
		Timestamps: timestamps,
		Samples:    samples,
	}))
	if err != nil {
		return err
	}
	return o.client.Publish(ctx, o.desc.Subject, data)
}

// Close publishes a goodbye and removes the descriptor. Safe to call more
// than once.
func (o *Outlet) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	var errs []error
	data, err := message.EncodePacket(message.GoodbyePacket(o.desc))
	if err == nil {
		err = o.client.Publish(ctx, o.desc.Subject, data)
	}
	if err != nil {
		errs = append(errs, err)
	}
	if err := o.kv.Delete(ctx, KeyFor(o.desc.SourceID)); err != nil && !stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), "nats", "Outlet.Close", "unregister")
	}
	return nil
}
