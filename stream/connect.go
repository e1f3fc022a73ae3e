package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/eegstreams/errors"
	"github.com/c360/eegstreams/message"
	"github.com/c360/eegstreams/pkg/retry"
)

// Options controls Connect.
type Options struct {
	Type         string
	Timeout      time.Duration
	MinChannels  int
	ChannelNames []string
	NamePolicy   string
	MaxBuffered  time.Duration
	Logger       *slog.Logger
}

// Connection is an opened stream with its resolved channel layout. The
// caller owns Inlet and must close it.
type Connection struct {
	Descriptor message.Descriptor
	Channels   ChannelSet
	Inlet      Inlet
}

// Close closes the inlet.
func (c *Connection) Close() error {
	return c.Inlet.Close()
}

var errNotVisible = stderrors.New("no matching stream visible yet")

// Connect waits up to opts.Timeout for a stream of opts.Type to appear,
// checks its channel count and opens an inlet on the first match.
//
// It fails with errors.ErrNoStreamFound when nothing appears in time and
// with errors.ErrInsufficientChannels when the stream is too narrow. Both
// are fatal.
func Connect(ctx context.Context, resolver Resolver, opts Options) (*Connection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream")

	if opts.MinChannels < 1 {
		opts.MinChannels = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	logger.Info("Resolving stream", "type", opts.Type, "timeout", opts.Timeout)

	policy := retry.Polling(opts.Timeout)
	policy.RetryIf = func(err error) bool {
		return stderrors.Is(err, errNotVisible) || errors.IsTransient(err)
	}

	desc, err := retry.DoWithResult(ctx, policy, func() (message.Descriptor, error) {
		descs, err := resolver.Resolve(ctx, opts.Type)
		if err != nil {
			logger.Debug("Resolve attempt failed", "error", err)
			return message.Descriptor{}, err
		}
		for _, d := range descs {
			if d.MatchesType(opts.Type) {
				return d, nil
			}
		}
		return message.Descriptor{}, errNotVisible
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, errors.WrapTransient(ctx.Err(), "stream", "Connect", "resolve")
		case stderrors.Is(err, errNotVisible):
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: type %q within %s", errors.ErrNoStreamFound, opts.Type, opts.Timeout),
				"stream", "Connect", "resolve")
		default:
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %w", errors.ErrNoStreamFound, err),
				"stream", "Connect", "resolve")
		}
	}

	if desc.ChannelCount < opts.MinChannels {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: stream %q has %d channels, need at least %d",
				errors.ErrInsufficientChannels, desc.Name, desc.ChannelCount, opts.MinChannels),
			"stream", "Connect", "channel check")
	}

	inlet, err := resolver.Open(ctx, desc, InletOptions{MaxBuffered: opts.MaxBuffered})
	if err != nil {
		return nil, errors.WrapFatal(err, "stream", "Connect", "open inlet")
	}

	channels := NewChannelSet(desc, opts.ChannelNames, opts.NamePolicy)
	logger.Info("Connected to stream",
		"name", desc.Name,
		"type", desc.Type,
		"source_id", desc.SourceID,
		"channels", channels.Count(),
		"rate", desc.NominalRate,
		"names", channels.Names())

	return &Connection{
		Descriptor: desc,
		Channels:   channels,
		Inlet:      inlet,
	}, nil
}
