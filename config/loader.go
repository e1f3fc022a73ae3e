package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/eegstreams/errors"
)

const (
	maxConfigSize = 1 << 20 // 1MB max config file size
	maxEnvVarLen  = 4096
)

// Loader handles configuration loading with layers and overrides.
// Defaults are applied first, then each file layer in order (deep-merged so a
// layer only overrides the keys it sets), then environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "EEGSTREAMS",
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer (.json, .yaml or .yml)
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the prefix of environment overrides (default EEGSTREAMS)
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := loadRawFile(path)
		if err != nil {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %s: %w", errors.ErrInvalidConfig, path, err),
				"Loader", "Load", "read layer")
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode merged config")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "Load", "apply environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// loadRawFile reads a layer as a generic map. YAML and JSON are chosen by
// file extension.
func loadRawFile(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]any)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	return raw, nil
}

func safeReadFile(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d > %d bytes", info.Size(), maxConfigSize)
	}
	return os.ReadFile(path)
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringEnv(key string, field func(*Config) *string) envBinding {
	return envBinding{key, func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

func intEnv(key string, field func(*Config) *int) envBinding {
	return envBinding{key, func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}}
}

func boolEnv(key string, field func(*Config) *bool) envBinding {
	return envBinding{key, func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}}
}

func durationEnv(key string, field func(*Config) *Duration) envBinding {
	return envBinding{key, func(cfg *Config, v string) error {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*field(cfg) = Duration(secs * float64(time.Second))
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = Duration(d)
		return nil
	}}
}

var envBindings = []envBinding{
	stringEnv("STREAM_TRANSPORT", func(c *Config) *string { return &c.Stream.Transport }),
	stringEnv("STREAM_TYPE", func(c *Config) *string { return &c.Stream.Type }),
	durationEnv("STREAM_RESOLVE_TIMEOUT", func(c *Config) *Duration { return &c.Stream.ResolveTimeout }),
	intEnv("STREAM_MIN_CHANNELS", func(c *Config) *int { return &c.Stream.MinChannels }),
	stringEnv("STREAM_NAME_POLICY", func(c *Config) *string { return &c.Stream.NamePolicy }),
	{"STREAM_CHANNEL_NAMES", func(c *Config, v string) error {
		c.Stream.ChannelNames = strings.Split(v, ",")
		return nil
	}},
	intEnv("ACQUISITION_CHUNK_SIZE", func(c *Config) *int { return &c.Acquisition.ChunkSize }),
	durationEnv("ACQUISITION_PULL_TIMEOUT", func(c *Config) *Duration { return &c.Acquisition.PullTimeout }),
	durationEnv("WINDOW_DURATION", func(c *Config) *Duration { return &c.Window.Duration }),
	stringEnv("RECORDER_DIRECTORY", func(c *Config) *string { return &c.Recorder.Directory }),
	stringEnv("RECORDER_FILENAME", func(c *Config) *string { return &c.Recorder.Filename }),
	intEnv("RECORDER_FLUSH_EVERY", func(c *Config) *int { return &c.Recorder.FlushEvery }),
	boolEnv("RECORDER_SYNC", func(c *Config) *bool { return &c.Recorder.Sync }),
	stringEnv("UDP_BIND", func(c *Config) *string { return &c.UDP.Bind }),
	stringEnv("NATS_URL", func(c *Config) *string { return &c.NATS.URL }),
	stringEnv("NATS_BUCKET", func(c *Config) *string { return &c.NATS.Bucket }),
	stringEnv("REPLAY_PATH", func(c *Config) *string { return &c.Replay.Path }),
	stringEnv("HTTP_ADDR", func(c *Config) *string { return &c.HTTP.Addr }),
	stringEnv("LOG_LEVEL", func(c *Config) *string { return &c.Log.Level }),
	stringEnv("LOG_FORMAT", func(c *Config) *string { return &c.Log.Format }),
}

// applyEnvOverrides applies PREFIX_SECTION_KEY environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	for _, b := range envBindings {
		name := l.envPrefix + "_" + b.key
		val, ok := l.lookupEnv(name)
		if !ok || val == "" {
			continue
		}
		if len(val) > maxEnvVarLen {
			return fmt.Errorf("%s: value too long", name)
		}
		if err := b.apply(cfg, val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
