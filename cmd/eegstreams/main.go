// Package main implements eegstreams, a recorder for live EEG streams.
// It resolves a stream by type, writes every sample to a CSV file with a
// periodic durability flush and serves a live view of the last few
// seconds until SIGINT or SIGTERM asks it to stop.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/c360/eegstreams/config"
	"github.com/c360/eegstreams/engine"
	"github.com/c360/eegstreams/errors"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "eegstreams"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.Remediation(err); hint != "" {
			_, _ = fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "main", "run", "parse flags")
	}
	if err := validateFlags(cliCfg); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "main", "run", "validate flags")
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(cliCfg.flags)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "layers", cliCfg.ConfigPaths)
		_, _ = fmt.Fprintln(stdout, cfg.String())
		return nil
	}

	logger.Info("Starting eegstreams",
		"version", Version,
		"build_time", BuildTime,
		"transport", cfg.Stream.Transport,
		"stream_type", cfg.Stream.Type)

	summary, err := engine.Run(context.Background(), cfg, engine.Options{
		Logger: logger,
		Banner: stdout,
	})
	_, _ = fmt.Fprintln(stdout, summary.String())
	return err
}

// loadConfig layers defaults, files, environment and flags, then validates.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cliCfg.ConfigPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	cliCfg.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
