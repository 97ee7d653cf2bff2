// Package prometheus exposes sessionkit metrics through client_golang.
//
// [Exporter] implements prometheus.Collector, so it can be registered with
// any registry, or served on its own through [Exporter.Handler]. Counter
// names are sessionkit_*_total; the single histogram is
// sessionkit_rotate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry.
//   - Mutate engine state.
package prometheus
