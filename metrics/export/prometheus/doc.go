// Package prometheus exposes jobauth engine metrics through client_golang.
//
// [Collector] implements prometheus.Collector over an engine's MetricsSnapshot. Counters
// are named jobauth_*_total; the verify latency histogram is jobauth_verify_latency_seconds.
// [Handler] serves a private registry holding only the collector.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers choose the registry.
//   - Mutate engine state.
package prometheus
