package replay

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/output/file"
	"github.com/c360/eegstreams/stream"
)

// record writes n samples spaced by step seconds and returns the path.
func record(t *testing.T, n int, step float64, manifest bool) string {
	t.Helper()
	cfg := file.Config{Directory: t.TempDir(), Filename: "session.csv", FlushEvery: 512, Manifest: manifest}
	opts := []file.Option{}
	if manifest {
		opts = append(opts, file.WithDescriptor(message.Descriptor{
			SourceID: "sim-1", Name: "FakeMuse", Type: "EEG", ChannelCount: 4, NominalRate: 256,
		}))
	}
	r, err := file.Open(cfg, file.Header([]string{"TP9", "AF7", "AF8", "TP10"}), opts...)
	require.NoError(t, err)
	for i := range n {
		require.NoError(t, r.Append(message.Sample{
			Index:     uint64(i),
			Timestamp: 500 + float64(i)*step,
			WallTime:  time.Now(),
			Values:    []float64{float64(i), 0, math.NaN(), 1},
		}))
	}
	require.NoError(t, r.Close())
	return r.Path()
}

func TestNewSourceRequiresPath(t *testing.T) {
	_, err := NewSource(Config{}, nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestReplayAll(t *testing.T) {
	path := record(t, 300, 1.0/256, true)
	src, err := NewSource(Config{Path: path}, nil)
	require.NoError(t, err)

	conn, err := stream.Connect(context.Background(), src, stream.Options{Type: "EEG", Timeout: time.Second, MinChannels: 4})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "FakeMuse", conn.Descriptor.Name)
	assert.Equal(t, 256.0, conn.Descriptor.NominalRate)
	assert.Equal(t, []string{"TP9", "AF7", "AF8", "TP10"}, conn.Channels.Names())

	var got []float64
	for {
		samples, ts, err := conn.Inlet.Pull(context.Background(), 256, 0)
		if err != nil {
			assert.ErrorIs(t, err, errors.ErrSourceClosed)
			assert.True(t, errors.IsFatal(err))
			break
		}
		require.Len(t, samples, len(ts))
		got = append(got, ts...)
	}
	require.Len(t, got, 300)
	assert.Equal(t, 500.0, got[0])
	assert.False(t, src.Health().Healthy)
}

func TestReplayEstimatesRateWithoutManifest(t *testing.T) {
	path := record(t, 50, 0.01, false)
	src, err := NewSource(Config{Path: path, Type: "EEG"}, nil)
	require.NoError(t, err)

	descs, err := src.Resolve(context.Background(), "EEG")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.InDelta(t, 100.0, descs[0].NominalRate, 0.01)
	assert.Equal(t, "replay-session", descs[0].SourceID)

	descs, err = src.Resolve(context.Background(), "PPG")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestReplayRealtime(t *testing.T) {
	path := record(t, 11, 0.02, false)
	src, err := NewSource(Config{Path: path, Realtime: true}, nil)
	require.NoError(t, err)

	descs, err := src.Resolve(context.Background(), "EEG")
	require.NoError(t, err)
	in, err := src.Open(context.Background(), descs[0], stream.InletOptions{})
	require.NoError(t, err)
	defer in.Close()

	start := time.Now()
	_, ts, err := in.Pull(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.Len(t, ts, 1)

	n := len(ts)
	for n < 11 {
		_, ts, err := in.Pull(context.Background(), 100, time.Second)
		require.NoError(t, err)
		n += len(ts)
	}
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestReplayMissingFile(t *testing.T) {
	src, err := NewSource(Config{Path: filepath.Join(t.TempDir(), "missing.csv")}, nil)
	require.NoError(t, err)

	_, err = stream.Connect(context.Background(), src, stream.Options{Type: "EEG", Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoStreamFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPullAfterClose(t *testing.T) {
	path := record(t, 5, 0.01, false)
	src, err := NewSource(Config{Path: path}, nil)
	require.NoError(t, err)
	descs, err := src.Resolve(context.Background(), "EEG")
	require.NoError(t, err)
	in, err := src.Open(context.Background(), descs[0], stream.InletOptions{})
	require.NoError(t, err)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	_, _, err = in.Pull(context.Background(), 1, 0)
	assert.ErrorIs(t, err, errors.ErrSourceClosed)
}

func openInlet(t *testing.T, path string) stream.Inlet {
	t.Helper()
	src, err := NewSource(Config{Path: path}, nil)
	require.NoError(t, err)
	descs, err := src.Resolve(context.Background(), "EEG")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	in, err := src.Open(context.Background(), descs[0], stream.InletOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func appendText(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestReplayStopsBeforeTornFinalRow(t *testing.T) {
	path := record(t, 50, 0.01, false)
	appendText(t, path, "2026-01-01T00:00:00.000000,1.0,5")
	in := openInlet(t, path)

	samples, ts, err := in.Pull(context.Background(), 256, 0)
	require.NoError(t, err)
	require.Len(t, ts, 50)
	assert.Equal(t, 49.0, samples[49][0])

	_, _, err = in.Pull(context.Background(), 256, 0)
	assert.ErrorIs(t, err, errors.ErrSourceClosed)
}

func TestReplayDeliversRowsBeforeCorruption(t *testing.T) {
	path := record(t, 20, 0.01, false)
	appendText(t, path, "garbage,1,2\ngarbage,1,2\n")
	in := openInlet(t, path)

	_, ts, err := in.Pull(context.Background(), 256, 0)
	require.NoError(t, err)
	assert.Len(t, ts, 20)

	_, _, err = in.Pull(context.Background(), 256, 0)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
	assert.NotErrorIs(t, err, errors.ErrSourceClosed)
}
