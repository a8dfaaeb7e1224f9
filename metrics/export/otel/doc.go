// Package otel publishes jobauth engine metrics as OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per cumulative latency bucket. A single callback reads
// Engine.MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
