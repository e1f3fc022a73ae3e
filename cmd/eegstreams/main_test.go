package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eegstreams/config"
	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/output/file"
	"github.com/c360/eegstreams/testutil"
)

func TestParseFlagsOverrides(t *testing.T) {
	cli, err := parseFlags([]string{
		"--transport=udp",
		"--type", "PPG",
		"-o", "/tmp/out",
		"--filename=s.csv",
		"--http-addr=off",
		"--log-level=debug",
	})
	require.NoError(t, err)
	require.NoError(t, validateFlags(cli))

	cfg := config.Default()
	cli.applyOverrides(cfg)
	assert.Equal(t, config.TransportUDP, cfg.Stream.Transport)
	assert.Equal(t, "PPG", cfg.Stream.Type)
	assert.Equal(t, "/tmp/out", cfg.Recorder.Directory)
	assert.Equal(t, "s.csv", cfg.Recorder.Filename)
	assert.Empty(t, cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset flags keep the loaded value")
}

func TestParseFlagsReplayImpliesTransport(t *testing.T) {
	cli, err := parseFlags([]string{"--replay=old.csv"})
	require.NoError(t, err)

	cfg := config.Default()
	cli.applyOverrides(cfg)
	assert.Equal(t, config.TransportReplay, cfg.Stream.Transport)
	assert.Equal(t, "old.csv", cfg.Replay.Path)
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing config", []string{"-c", "/does/not/exist.yaml"}},
		{"bad level", []string{"--log-level=loud"}},
		{"bad format", []string{"--log-format=xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, err := parseFlags(tt.args)
			require.NoError(t, err)
			assert.Error(t, validateFlags(cli))
		})
	}

	_, err := parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
	_, err = parseFlags([]string{"stray"})
	assert.Error(t, err)
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &out))
	assert.Equal(t, "eegstreams version "+Version+"\n", out.String())
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  type: EEG\n  min_channels: 2\nwindow:\n  duration: 5s\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-c", path, "--validate", "--log-format=json"}, &out))
	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), `"min_channels": 2`)
}

func TestRunInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"acquisition": {"chunk_size": 0}}`), 0o600))

	err := run([]string{"-c", path, "--validate"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Contains(t, errors.Remediation(err), "--validate")
}

func TestRunReplaysRecording(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.csv")

	rec, err := file.Open(file.Config{Directory: dir, Filename: "source.csv", FlushEvery: 64},
		file.Header(testutil.MuseChannels))
	require.NoError(t, err)
	samples, timestamps := testutil.Ramp(300, 4, 10, 1.0/256)
	now := time.Now()
	for i := range samples {
		require.NoError(t, rec.Append(message.Sample{
			Index:     uint64(i),
			Timestamp: timestamps[i],
			WallTime:  now,
			Values:    samples[i],
		}))
	}
	require.NoError(t, rec.Close())

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("replay:\n  realtime: false\n"), 0o600))

	var out bytes.Buffer
	err = run([]string{
		"-c", cfgPath,
		"--replay", source,
		"-o", filepath.Join(dir, "out"),
		"--http-addr=off",
		"--log-level=warn",
	}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSourceClosed)
	assert.Contains(t, out.String(), "Press Ctrl+C")
	assert.Contains(t, out.String(), "Saved 300 rows to "+filepath.Join(dir, "out", "recording.csv"))

	_, replayed, err := file.ReadAll(filepath.Join(dir, "out", "recording.csv"))
	require.NoError(t, err)
	require.Len(t, replayed, 300)
	assert.InDelta(t, timestamps[299], replayed[299].Timestamp, 1e-6)
	assert.Equal(t, samples[299], replayed[299].Values)
}
