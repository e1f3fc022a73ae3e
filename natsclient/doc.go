// Package natsclient wraps a NATS connection for the stream transports.
//
// A Client owns one connection and its JetStream context. It tracks the
// connection state through the nats.go handlers and, when built WithMetrics,
// mirrors it into the core metrics:
//
//	client, err := natsclient.NewClient(cfg.NATS.URL,
//		natsclient.WithLogger(logger),
//		natsclient.WithMetrics(registry))
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close(context.Background())
//
// KeyValue opens or creates a bucket; KVStore adds per-call timeouts and maps
// missing keys to ErrKVKeyNotFound. Stream descriptors live in such a bucket
// while sample chunks travel as plain publish/subscribe messages.
//
// NewTestClient starts a disposable NATS container with testcontainers-go for
// integration tests (build tag "integration").
package natsclient
