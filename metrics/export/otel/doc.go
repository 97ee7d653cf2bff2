// Package otel publishes sessionkit metrics as OpenTelemetry instruments.
//
// Counters are grouped into families: one Int64ObservableCounter per
// family, one attribute telling members apart. Rotate rejections land on
// sessionkit.rotate.rejections keyed by "reason", using the same names the
// audit trail records. Rotate latency, when enabled, is a cumulative bucket
// gauge keyed by "le". One callback reads the Engine's MetricsSnapshot on
// each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter or use the global one.
//   - Mutate engine state.
package otel
