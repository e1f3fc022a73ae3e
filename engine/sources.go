package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/eegstreams/config"
	"github.com/c360/eegstreams/errors"
	natsinput "github.com/c360/eegstreams/input/nats"
	"github.com/c360/eegstreams/input/replay"
	"github.com/c360/eegstreams/input/simulator"
	"github.com/c360/eegstreams/input/udp"
	"github.com/c360/eegstreams/metric"
	"github.com/c360/eegstreams/natsclient"
	"github.com/c360/eegstreams/stream"
)

// source is a resolver plus whatever must be released with it.
type source struct {
	resolver stream.Resolver
	release  func()
}

// openSource builds the resolver for cfg.Stream.Transport.
func openSource(ctx context.Context, cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*source, error) {
	switch cfg.Stream.Transport {
	case config.TransportSimulator:
		simCfg := simulator.DefaultConfig()
		simCfg.Name = cfg.Simulator.Name
		simCfg.Type = cfg.Stream.Type
		simCfg.Channels = cfg.Simulator.Channels
		simCfg.Rate = cfg.Simulator.Rate
		simCfg.Amplitude = cfg.Simulator.Amplitude
		simCfg.NoiseLevel = cfg.Simulator.NoiseLevel
		src, err := simulator.NewSource(simCfg, logger)
		if err != nil {
			return nil, err
		}
		return &source{resolver: src, release: func() {}}, nil

	case config.TransportUDP:
		r, err := udp.NewResolver(udp.Deps{
			Config:          udp.Config{Bind: cfg.UDP.Bind},
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		if err := r.Start(ctx); err != nil {
			return nil, err
		}
		return &source{resolver: r, release: func() {
			if err := r.Stop(5 * time.Second); err != nil {
				logger.Warn("UDP resolver did not stop cleanly", "error", err)
			}
		}}, nil

	case config.TransportNATS:
		client, err := natsclient.NewClient(cfg.NATS.URL,
			natsclient.WithLogger(logger),
			natsclient.WithMetrics(registry),
			natsclient.WithClientName("eegstreams"))
		if err != nil {
			return nil, err
		}
		if err := connectNATS(ctx, client); err != nil {
			return nil, err
		}
		r, err := natsinput.NewResolver(ctx, natsinput.Deps{
			Client:          client,
			Bucket:          cfg.NATS.Bucket,
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err != nil {
			_ = client.Close(context.Background())
			return nil, err
		}
		return &source{resolver: r, release: func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Warn("NATS client did not close cleanly", "error", err)
			}
		}}, nil

	case config.TransportReplay:
		src, err := replay.NewSource(replay.Config{
			Path:     cfg.Replay.Path,
			Type:     cfg.Stream.Type,
			Realtime: cfg.Replay.Realtime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &source{resolver: src, release: func() {}}, nil

	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: transport %q", errors.ErrInvalidConfig, cfg.Stream.Transport),
			"engine", "openSource", "transport selection")
	}
}

// connectNATS establishes the connection and waits for it to be ready.
func connectNATS(ctx context.Context, client *natsclient.Client) error {
	if err := client.Connect(ctx); err != nil {
		return errors.WrapFatal(err, "engine", "connectNATS", "connect")
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return errors.WrapFatal(err, "engine", "connectNATS", "wait for connection")
	}
	return nil
}
