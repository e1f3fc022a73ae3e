package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/c360/eegstreams/errors"
)

// Transport names accepted by stream.transport
const (
	TransportSimulator = "simulator"
	TransportUDP       = "udp"
	TransportNATS      = "nats"
	TransportReplay    = "replay"
)

// Channel naming policies accepted by stream.name_policy
const (
	NamePolicyAuto    = "auto"
	NamePolicyGeneric = "generic"
)

// Config is the complete runtime configuration
type Config struct {
	Stream      StreamConfig      `json:"stream"`
	Acquisition AcquisitionConfig `json:"acquisition"`
	Window      WindowConfig      `json:"window"`
	Recorder    RecorderConfig    `json:"recorder"`
	UDP         UDPConfig         `json:"udp"`
	NATS        NATSConfig        `json:"nats"`
	Simulator   SimulatorConfig   `json:"simulator"`
	Replay      ReplayConfig      `json:"replay"`
	HTTP        HTTPConfig        `json:"http"`
	Log         LogConfig         `json:"log"`
}

// StreamConfig selects and resolves the source stream
type StreamConfig struct {
	Transport      string   `json:"transport"`
	Type           string   `json:"type"`
	ResolveTimeout Duration `json:"resolve_timeout"`
	MinChannels    int      `json:"min_channels"`
	ChannelNames   []string `json:"channel_names"`
	NamePolicy     string   `json:"name_policy"`
	MaxBuffered    Duration `json:"max_buffered"`
}

// AcquisitionConfig controls the pull loop
type AcquisitionConfig struct {
	ChunkSize   int      `json:"chunk_size"`
	PullTimeout Duration `json:"pull_timeout"`
}

// WindowConfig controls the live view buffer
type WindowConfig struct {
	Duration            Duration `json:"duration"`
	RedrawInterval      Duration `json:"redraw_interval"`
	MinAutoscaleSamples int      `json:"min_autoscale_samples"`
}

// RecorderConfig controls the CSV recording
type RecorderConfig struct {
	Directory  string `json:"directory"`
	Filename   string `json:"filename"`
	FlushEvery int    `json:"flush_every"`
	Sync       bool   `json:"sync"`
	Manifest   bool   `json:"manifest"`
}

// UDPConfig configures the UDP transport
type UDPConfig struct {
	Bind string `json:"bind"`
}

// NATSConfig configures the NATS transport
type NATSConfig struct {
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
}

// SimulatorConfig configures the in-process synthetic source
type SimulatorConfig struct {
	Name       string  `json:"name"`
	Channels   int     `json:"channels"`
	Rate       float64 `json:"rate"`
	Amplitude  float64 `json:"amplitude"`
	NoiseLevel float64 `json:"noise_level"`
}

// ReplayConfig configures the CSV replay source
type ReplayConfig struct {
	Path     string `json:"path"`
	Realtime bool   `json:"realtime"`
}

// HTTPConfig configures the metrics, health and live view server
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the configuration used when no file or override sets a value
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			Transport:      TransportSimulator,
			Type:           "EEG",
			ResolveTimeout: Duration(15 * time.Second),
			MinChannels:    4,
			ChannelNames:   []string{"TP9", "AF7", "AF8", "TP10"},
			NamePolicy:     NamePolicyAuto,
			MaxBuffered:    Duration(10 * time.Second),
		},
		Acquisition: AcquisitionConfig{
			ChunkSize:   256,
			PullTimeout: Duration(time.Second),
		},
		Window: WindowConfig{
			Duration:            Duration(10 * time.Second),
			RedrawInterval:      Duration(50 * time.Millisecond),
			MinAutoscaleSamples: 10,
		},
		Recorder: RecorderConfig{
			Directory:  "Data",
			Filename:   "recording.csv",
			FlushEvery: 512,
			Sync:       true,
			Manifest:   true,
		},
		UDP: UDPConfig{
			Bind: "0.0.0.0:16571",
		},
		NATS: NATSConfig{
			URL:    "nats://localhost:4222",
			Bucket: "EEG_STREAMS",
		},
		Simulator: SimulatorConfig{
			Name:       "FakeMuse",
			Channels:   4,
			Rate:       256,
			Amplitude:  50,
			NoiseLevel: 5,
		},
		Replay: ReplayConfig{
			Realtime: true,
		},
		HTTP: HTTPConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks every section and reports all problems at once. The
// returned error matches errors.ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	transports := []string{TransportSimulator, TransportUDP, TransportNATS, TransportReplay}
	if !slices.Contains(transports, c.Stream.Transport) {
		add("stream.transport %q must be one of %v", c.Stream.Transport, transports)
	}
	if c.Stream.Type == "" {
		add("stream.type is required")
	}
	if c.Stream.ResolveTimeout <= 0 {
		add("stream.resolve_timeout must be positive")
	}
	if c.Stream.MinChannels < 1 {
		add("stream.min_channels must be at least 1")
	}
	if c.Stream.NamePolicy != NamePolicyAuto && c.Stream.NamePolicy != NamePolicyGeneric {
		add("stream.name_policy %q must be %q or %q", c.Stream.NamePolicy, NamePolicyAuto, NamePolicyGeneric)
	}
	if c.Stream.MaxBuffered <= 0 {
		add("stream.max_buffered must be positive")
	}

	if c.Acquisition.ChunkSize < 1 {
		add("acquisition.chunk_size must be at least 1")
	}
	if c.Acquisition.PullTimeout <= 0 {
		add("acquisition.pull_timeout must be positive")
	}

	if c.Window.Duration <= 0 {
		add("window.duration must be positive")
	}
	if c.Window.RedrawInterval <= 0 {
		add("window.redraw_interval must be positive")
	}
	if c.Window.MinAutoscaleSamples < 0 {
		add("window.min_autoscale_samples cannot be negative")
	}

	if c.Recorder.Filename == "" {
		add("recorder.filename is required")
	}
	if c.Recorder.FlushEvery < 1 {
		add("recorder.flush_every must be at least 1")
	}

	switch c.Stream.Transport {
	case TransportUDP:
		if _, _, err := net.SplitHostPort(c.UDP.Bind); err != nil {
			add("udp.bind %q: %v", c.UDP.Bind, err)
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			add("nats.url is required for the nats transport")
		}
		if c.NATS.Bucket == "" {
			add("nats.bucket is required for the nats transport")
		}
	case TransportSimulator:
		if c.Simulator.Channels < 1 {
			add("simulator.channels must be at least 1")
		}
		if c.Simulator.Rate <= 0 {
			add("simulator.rate must be positive")
		}
	case TransportReplay:
		if c.Replay.Path == "" {
			add("replay.path is required for the replay transport")
		}
	}

	if c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			add("http.addr %q: %v", c.HTTP.Addr, err)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.WrapFatal(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(problems...)),
		"Config", "Validate", "configuration check")
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
