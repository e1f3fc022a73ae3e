package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"

	"github.com/c360/eegstreams/config"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths []string
	Transport   string
	StreamType  string
	OutputDir   string
	Filename    string
	HTTPAddr    string
	ReplayPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	ShowHelp    bool
	Validate    bool

	flags *pflag.FlagSet
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	cfg.flags = fs

	var defaultConfigs []string
	if path := os.Getenv("EEGSTREAMS_CONFIG"); path != "" {
		defaultConfigs = []string{path}
	}

	fs.StringSliceVarP(&cfg.ConfigPaths, "config", "c", defaultConfigs,
		"Configuration file layers, JSON or YAML, applied in order (env: EEGSTREAMS_CONFIG)")
	fs.StringVar(&cfg.Transport, "transport", "",
		"Stream source: simulator, udp, nats, replay (env: EEGSTREAMS_STREAM_TRANSPORT)")
	fs.StringVar(&cfg.StreamType, "type", "",
		"Stream type to resolve, e.g. EEG (env: EEGSTREAMS_STREAM_TYPE)")
	fs.StringVarP(&cfg.OutputDir, "output-dir", "o", "",
		"Directory for the recording (env: EEGSTREAMS_RECORDER_DIRECTORY)")
	fs.StringVar(&cfg.Filename, "filename", "",
		"Recording file name (env: EEGSTREAMS_RECORDER_FILENAME)")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", "",
		"Metrics, health and live view address, \"off\" to disable (env: EEGSTREAMS_HTTP_ADDR)")
	fs.StringVar(&cfg.ReplayPath, "replay", "",
		"Replay a recorded CSV instead of a live stream (env: EEGSTREAMS_REPLAY_PATH)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (env: EEGSTREAMS_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (env: EEGSTREAMS_LOG_FORMAT)")
	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			cfg.ShowHelp = true
			return cfg, nil
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	return nil
}

// applyOverrides copies explicitly set flags over the loaded configuration.
// Flags win over files and environment.
func (c *CLIConfig) applyOverrides(cfg *config.Config) {
	changed := func(name string) bool {
		return c.flags != nil && c.flags.Changed(name)
	}

	if changed("transport") {
		cfg.Stream.Transport = c.Transport
	}
	if changed("type") {
		cfg.Stream.Type = c.StreamType
	}
	if changed("output-dir") {
		cfg.Recorder.Directory = c.OutputDir
	}
	if changed("filename") {
		cfg.Recorder.Filename = c.Filename
	}
	if changed("http-addr") {
		cfg.HTTP.Addr = c.HTTPAddr
		if c.HTTPAddr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if changed("replay") {
		cfg.Replay.Path = c.ReplayPath
		if !changed("transport") {
			cfg.Stream.Transport = config.TransportReplay
		}
	}
	if changed("log-level") {
		cfg.Log.Level = c.LogLevel
	}
	if changed("log-format") {
		cfg.Log.Format = c.LogFormat
	}
}

func printDetailedHelp(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - EEG stream recorder

Resolves an EEG stream, records every sample to CSV and serves a live view.

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Record the first EEG stream announced over UDP
  %[1]s --transport=udp

  # Record from the built-in simulator into ./sessions
  %[1]s --transport=simulator -o sessions --filename=sim.csv

  # Layer a site config over the base config
  %[1]s -c base.yaml -c site.yaml

  # Replay an earlier recording through the live view
  %[1]s --replay=Data/recording.csv --filename=replayed.csv

  # Validate configuration only
  %[1]s -c config.yaml --validate

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}
