package udp

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/stream"
)

func museDescriptor(id string) message.Descriptor {
	return message.Descriptor{
		SourceID:     id,
		Name:         "FakeMuse",
		Type:         "EEG",
		ChannelCount: 4,
		NominalRate:  256,
		ChannelNames: []string{"TP9", "AF7", "AF8", "TP10"},
		CreatedAt:    time.Now(),
	}
}

func startResolver(t *testing.T, registry *metric.MetricsRegistry) *Resolver {
	t.Helper()
	r, err := NewResolver(Deps{
		Config:          Config{Bind: "127.0.0.1:0"},
		MetricsRegistry: registry,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop(time.Second) })
	return r
}

func encode(t *testing.T, p message.Packet) []byte {
	t.Helper()
	data, err := message.EncodePacket(p)
	require.NoError(t, err)
	return data
}

func chunkPacket(t *testing.T, source string, seq uint64, ts []float64, samples [][]float64) []byte {
	return encode(t, message.ChunkPacket(message.Chunk{
		SourceID:   source,
		Seq:        seq,
		Timestamps: ts,
		Samples:    samples,
	}))
}

func TestNewResolverInvalidBind(t *testing.T) {
	_, err := NewResolver(Deps{Config: Config{Bind: "no-port"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestResolveBeforeStart(t *testing.T) {
	r, err := NewResolver(Deps{Config: Config{Bind: "127.0.0.1:0"}})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "EEG")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Nil(t, r.Addr())
}

func TestOutletToResolver(t *testing.T) {
	r := startResolver(t, nil)

	out, err := DialOutlet(r.Addr().String(), museDescriptor("muse-1"))
	require.NoError(t, err)
	require.NoError(t, out.Announce())

	conn, err := stream.Connect(context.Background(), r, stream.Options{
		Type:        "EEG",
		Timeout:     3 * time.Second,
		MinChannels: 4,
		MaxBuffered: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"TP9", "AF7", "AF8", "TP10"}, conn.Channels.Names())

	ts := make([]float64, 200)
	samples := make([][]float64, 200)
	for i := range ts {
		ts[i] = 100 + float64(i)/256
		samples[i] = []float64{float64(i), 1, 2, 3}
	}
	require.NoError(t, out.Send(ts, samples))

	var got []float64
	deadline := time.Now().Add(3 * time.Second)
	for len(got) < 200 && time.Now().Before(deadline) {
		_, pulled, err := conn.Inlet.Pull(context.Background(), 256, 100*time.Millisecond)
		require.NoError(t, err)
		got = append(got, pulled...)
	}
	assert.Equal(t, ts, got)

	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	require.Eventually(t, func() bool {
		_, _, err := conn.Inlet.Pull(context.Background(), 1, 10*time.Millisecond)
		return stderrors.Is(err, errors.ErrSourceClosed)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestResolveOrderAndTTL(t *testing.T) {
	r := startResolver(t, nil)

	older := museDescriptor("b")
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer := museDescriptor("a")
	ppg := museDescriptor("ppg")
	ppg.Type = "PPG"

	r.handlePacket(encode(t, message.AnnouncePacket(newer)))
	r.handlePacket(encode(t, message.AnnouncePacket(older)))
	r.handlePacket(encode(t, message.AnnouncePacket(ppg)))

	descs, err := r.Resolve(context.Background(), "eeg")
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "b", descs[0].SourceID)
	assert.Equal(t, "a", descs[1].SourceID)

	r.mu.Lock()
	r.streams["a"].lastSeen = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	descs, err = r.Resolve(context.Background(), "EEG")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "b", descs[0].SourceID)
}

func TestOpenRequiresAnnouncement(t *testing.T) {
	r := startResolver(t, nil)

	_, err := r.Open(context.Background(), museDescriptor("ghost"), stream.InletOptions{})
	assert.ErrorIs(t, err, errors.ErrNoStreamFound)

	r.handlePacket(encode(t, message.AnnouncePacket(museDescriptor("muse-1"))))
	in, err := r.Open(context.Background(), museDescriptor("muse-1"), stream.InletOptions{})
	require.NoError(t, err)

	_, err = r.Open(context.Background(), museDescriptor("muse-1"), stream.InletOptions{})
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	require.NoError(t, in.Close())
	in, err = r.Open(context.Background(), museDescriptor("muse-1"), stream.InletOptions{})
	require.NoError(t, err)
	require.NoError(t, in.Close())
}

func TestChunkHandling(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	r := startResolver(t, reg)

	desc := museDescriptor("muse-1")
	r.handlePacket(encode(t, message.AnnouncePacket(desc)))
	in, err := r.Open(context.Background(), desc, stream.InletOptions{MaxBuffered: time.Second})
	require.NoError(t, err)

	r.handlePacket(chunkPacket(t, "muse-1", 0, []float64{1, 2}, [][]float64{{1}, {2}}))
	r.handlePacket(chunkPacket(t, "muse-1", 3, []float64{3, 4, 5}, [][]float64{{3}, {4}}))
	r.handlePacket(chunkPacket(t, "other", 0, []float64{9}, [][]float64{{9}}))
	r.handlePacket([]byte{0xc1})

	_, ts, err := in.Pull(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, ts)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.sequenceGaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.unpairedSamples))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.knownStreams))
	assert.Equal(t, 1, r.Health().ErrorCount)
}

func TestStopEndsInlets(t *testing.T) {
	r := startResolver(t, nil)

	desc := museDescriptor("muse-1")
	r.handlePacket(encode(t, message.AnnouncePacket(desc)))
	in, err := r.Open(context.Background(), desc, stream.InletOptions{})
	require.NoError(t, err)
	assert.True(t, r.Health().Healthy)

	require.NoError(t, r.Stop(time.Second))
	require.NoError(t, r.Stop(time.Second))
	assert.False(t, r.Health().Healthy)

	_, _, err = in.Pull(context.Background(), 1, time.Second)
	assert.ErrorIs(t, err, errors.ErrSourceClosed)
}

func TestOutletSplitsLargeChunks(t *testing.T) {
	assert.Equal(t, []int{3, 4}, window([]int{1, 2, 3, 4}, 2, 5))
	assert.Nil(t, window([]int{1}, 4, 2))
}
