package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/stream"
)

func burstConfig(limit uint64) Config {
	cfg := DefaultConfig()
	cfg.Realtime = false
	cfg.Limit = limit
	cfg.Seed = 42
	return cfg
}

func TestNewSourceValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels = 0
	_, err := NewSource(cfg, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Rate = 0
	_, err = NewSource(cfg, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestResolve(t *testing.T) {
	src, err := NewSource(DefaultConfig(), nil)
	require.NoError(t, err)

	descs, err := src.Resolve(context.Background(), "eeg")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "FakeMuse", descs[0].Name)
	assert.Equal(t, 4, descs[0].ChannelCount)
	assert.Equal(t, []string{"TP9", "AF7", "AF8", "TP10"}, descs[0].ChannelNames)

	descs, err = src.Resolve(context.Background(), "PPG")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestResolveVisibleAfter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VisibleAfter = time.Hour
	src, err := NewSource(cfg, nil)
	require.NoError(t, err)

	descs, err := src.Resolve(context.Background(), "EEG")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestConnectAndPullBurst(t *testing.T) {
	src, err := NewSource(burstConfig(300), nil)
	require.NoError(t, err)

	conn, err := stream.Connect(context.Background(), src, stream.Options{
		Type:        "EEG",
		Timeout:     time.Second,
		MinChannels: 4,
	})
	require.NoError(t, err)
	defer conn.Close()

	samples, ts, err := conn.Inlet.Pull(context.Background(), 256, time.Second)
	require.NoError(t, err)
	require.Len(t, samples, 256)
	require.Len(t, ts, 256)
	for _, s := range samples {
		assert.Len(t, s, 4)
	}
	for i := 1; i < len(ts); i++ {
		assert.Greater(t, ts[i], ts[i-1])
	}

	samples, _, err = conn.Inlet.Pull(context.Background(), 256, time.Second)
	require.NoError(t, err)
	assert.Len(t, samples, 44)

	_, _, err = conn.Inlet.Pull(context.Background(), 256, time.Second)
	assert.ErrorIs(t, err, errors.ErrSourceClosed)
	assert.False(t, src.Health().Healthy)
}

func TestPullRealtimePacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = 1000
	src, err := NewSource(cfg, nil)
	require.NoError(t, err)

	in, err := src.Open(context.Background(), src.Descriptor(), stream.InletOptions{})
	require.NoError(t, err)
	defer in.Close()

	time.Sleep(50 * time.Millisecond)
	samples, _, err := in.Pull(context.Background(), 10_000, time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
	assert.Less(t, len(samples), 500)
}

func TestPullAfterClose(t *testing.T) {
	src, err := NewSource(burstConfig(0), nil)
	require.NoError(t, err)

	in, err := src.Open(context.Background(), src.Descriptor(), stream.InletOptions{})
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	_, _, err = in.Pull(context.Background(), 1, 0)
	assert.ErrorIs(t, err, errors.ErrSourceClosed)
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(2, 256, 50, 5, 7)
	b := NewGenerator(2, 256, 50, 5, 7)

	tsA, sA := a.Chunk(10)
	tsB, sB := b.Chunk(10)
	assert.Equal(t, tsA, tsB)
	assert.Equal(t, sA, sB)
	assert.Equal(t, uint64(10), a.Produced())
	assert.InDelta(t, 9.0/256, tsA[9], 1e-12)
}
