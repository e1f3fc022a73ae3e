// Package main implements eegsim, a synthetic EEG source. It announces a
// Muse-like stream over UDP or NATS and publishes band-limited noise at the
// nominal rate, so the recorder can be exercised without a headset.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/c360/eegstreams/errors"
	natsinput "github.com/c360/eegstreams/input/nats"
	"github.com/c360/eegstreams/input/simulator"
	"github.com/c360/eegstreams/input/udp"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/natsclient"
)

const (
	Version = "0.1.0"
	appName = "eegsim"
)

type options struct {
	Transport     string
	Addr          string
	NATSURL       string
	Bucket        string
	Name          string
	Type          string
	Channels      int
	Rate          float64
	Chunk         int
	Amplitude     float64
	Noise         float64
	Duration      time.Duration
	AnnounceEvery time.Duration
	Seed          uint64
	LogLevel      string
	ShowVersion   bool
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.StringVar(&opts.Transport, "transport", "udp", "Transport: udp or nats")
	fs.StringVar(&opts.Addr, "addr", "127.0.0.1:16571", "UDP address of the recorder")
	fs.StringVar(&opts.NATSURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	fs.StringVar(&opts.Bucket, "bucket", natsinput.DefaultBucket, "NATS KV bucket of stream descriptors")
	fs.StringVar(&opts.Name, "name", "FakeMuse", "Stream name")
	fs.StringVar(&opts.Type, "type", "EEG", "Stream type")
	fs.IntVar(&opts.Channels, "channels", 4, "Channel count")
	fs.Float64Var(&opts.Rate, "rate", 256, "Nominal sampling rate in Hz")
	fs.IntVar(&opts.Chunk, "chunk", 12, "Samples per published chunk")
	fs.Float64Var(&opts.Amplitude, "amplitude", 50, "Signal amplitude in microvolts")
	fs.Float64Var(&opts.Noise, "noise", 5, "Gaussian noise level")
	fs.DurationVar(&opts.Duration, "duration", 0, "Stop after this long, 0 runs until interrupted")
	fs.DurationVar(&opts.AnnounceEvery, "announce-every", time.Second, "Interval between stream announcements")
	fs.Uint64Var(&opts.Seed, "seed", 0, "Noise seed, 0 picks one from the clock")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVarP(&opts.ShowVersion, "version", "v", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.Channels < 1 || opts.Rate <= 0 || opts.Chunk < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: channels, rate and chunk must be positive", errors.ErrInvalidConfig),
			"eegsim", "parseFlags", "validate")
	}
	if opts.Transport != "udp" && opts.Transport != "nats" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: transport %q", errors.ErrInvalidConfig, opts.Transport),
			"eegsim", "parseFlags", "validate")
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if opts.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(opts.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("service", appName)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if opts.Duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.Duration)
		defer stop()
	}

	desc := descriptorFor(opts)
	out, closeTransport, err := openOutlet(ctx, opts, desc, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	logger.Info("Streaming",
		"name", desc.Name,
		"type", desc.Type,
		"channels", desc.ChannelCount,
		"rate", desc.NominalRate,
		"transport", opts.Transport,
		"source_id", desc.SourceID)

	gen := simulator.NewGenerator(opts.Channels, opts.Rate, opts.Amplitude, opts.Noise, opts.Seed)
	sent, err := pump(ctx, out, gen, pumpConfig{
		Rate:          opts.Rate,
		Chunk:         opts.Chunk,
		AnnounceEvery: opts.AnnounceEvery,
		Base:          float64(time.Now().UnixNano()) / 1e9,
	}, logger)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if cerr := out.Close(closeCtx); cerr != nil {
		logger.Warn("Outlet did not close cleanly", "error", cerr)
	}
	logger.Info("Stopped", "samples", sent)
	return err
}

func descriptorFor(opts *options) message.Descriptor {
	var names []string
	if opts.Channels == 4 {
		names = []string{"TP9", "AF7", "AF8", "TP10"}
	}
	host, _ := os.Hostname()
	return message.Descriptor{
		SourceID:     appName + "-" + uuid.NewString(),
		Name:         opts.Name,
		Type:         opts.Type,
		ChannelCount: opts.Channels,
		NominalRate:  opts.Rate,
		ChannelNames: names,
		Hostname:     host,
		CreatedAt:    time.Now(),
	}
}

// openOutlet dials the chosen transport. The returned func releases the
// transport after the outlet is closed.
func openOutlet(ctx context.Context, opts *options, desc message.Descriptor, logger *slog.Logger) (outlet, func(), error) {
	switch opts.Transport {
	case "nats":
		client, err := natsclient.NewClient(opts.NATSURL,
			natsclient.WithLogger(logger),
			natsclient.WithClientName(appName))
		if err != nil {
			return nil, nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		out, err := natsinput.NewOutlet(ctx, client, opts.Bucket, desc)
		if err != nil {
			_ = client.Close(context.Background())
			return nil, nil, err
		}
		return out, func() { _ = client.Close(context.Background()) }, nil
	default:
		out, err := udp.DialOutlet(opts.Addr, desc)
		if err != nil {
			return nil, nil, err
		}
		return udpOutlet{out}, func() {}, nil
	}
}
