// Package metric provides the Prometheus registry and the HTTP server that
// exposes it.
//
// Components register their own collectors through MetricsRegistry, keyed by
// component and metric name so duplicates are rejected:
//
//	samples := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "acquisition",
//	    Name:      "samples_total",
//	    Help:      "Samples acquired",
//	})
//	if err := registry.RegisterCounter("acquirer", "samples", samples); err != nil {
//	    return err
//	}
//
// A nil registry means metrics are disabled; components check for nil and
// skip registration.
//
// Server serves /metrics and any extra handlers until its context ends:
//
//	srv := metric.NewServer(":9090", "", registry)
//	srv.Handle("/health", health.Handler(mon))
//	g.Go(func() error { return srv.Run(ctx) })
package metric
