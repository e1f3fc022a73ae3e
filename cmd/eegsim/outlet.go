package main

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/eegstreams/errors"
	natsinput "github.com/c360/eegstreams/input/nats"
	"github.com/c360/eegstreams/input/simulator"
	"github.com/c360/eegstreams/input/udp"
)

// outlet publishes one stream on some transport.
type outlet interface {
	Announce(ctx context.Context) error
	Send(ctx context.Context, timestamps []float64, samples [][]float64) error
	Close(ctx context.Context) error
}

// udpOutlet adapts udp.Outlet, whose socket writes take no context.
type udpOutlet struct {
	*udp.Outlet
}

func (o udpOutlet) Announce(context.Context) error { return o.Outlet.Announce() }

func (o udpOutlet) Send(_ context.Context, timestamps []float64, samples [][]float64) error {
	return o.Outlet.Send(timestamps, samples)
}

func (o udpOutlet) Close(context.Context) error { return o.Outlet.Close() }

var (
	_ outlet = udpOutlet{}
	_ outlet = (*natsinput.Outlet)(nil)
)

// pumpConfig paces the synthetic stream.
type pumpConfig struct {
	Rate          float64
	Chunk         int
	Limit         uint64
	AnnounceEvery time.Duration

	// Base is added to every generated timestamp.
	Base float64
}

// pump sends generated chunks at cfg.Rate until ctx is done or cfg.Limit
// samples are out. Transient send failures are logged and skipped, the
// way a real amplifier keeps streaming past a dropped packet.
func pump(ctx context.Context, out outlet, gen *simulator.Generator, cfg pumpConfig, logger *slog.Logger) (uint64, error) {
	if cfg.Chunk < 1 {
		cfg.Chunk = 1
	}
	if cfg.AnnounceEvery <= 0 {
		cfg.AnnounceEvery = time.Second
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Chunk)
	announce := time.NewTicker(cfg.AnnounceEvery)
	defer announce.Stop()

	if err := out.Announce(ctx); err != nil {
		return 0, err
	}

	var sent uint64
	for {
		n := cfg.Chunk
		if cfg.Limit > 0 {
			if sent >= cfg.Limit {
				return sent, nil
			}
			n = int(min(uint64(n), cfg.Limit-sent))
		}
		if err := limiter.WaitN(ctx, n); err != nil {
			if ctx.Err() != nil {
				return sent, nil
			}
			return sent, errors.WrapFatal(err, "eegsim", "pump", "pacing")
		}

		select {
		case <-announce.C:
			if err := out.Announce(ctx); err != nil {
				logger.Warn("Announcement failed", "error", err)
			}
		default:
		}

		timestamps, samples := gen.Chunk(n)
		for i := range timestamps {
			timestamps[i] += cfg.Base
		}
		if err := out.Send(ctx, timestamps, samples); err != nil {
			if !errors.IsTransient(err) {
				return sent, err
			}
			logger.Warn("Chunk dropped", "samples", n, "error", err)
			continue
		}
		sent += uint64(n)
	}
}
