// Package prometheus renders Engine metrics in Prometheus text format.
//
// Counters that only differ by outcome share one family with an outcome
// label, for example couponauth_login_attempts_total{outcome="rejected"}.
// Logouts use a scope label instead. The login histogram is
// couponauth_login_latency_seconds.
//
// The exporter does not use a Prometheus registry. Callers mount
// [PrometheusExporter.Handler] on /metrics.
package prometheus
