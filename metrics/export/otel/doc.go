// Package otel publishes Engine metrics as OpenTelemetry observable
// instruments.
//
// Every counter family gets one Int64ObservableCounter. Outcomes such as
// success, rejected and rate_limited are attributes on that instrument
// rather than separate instruments. Login latency is a single gauge with an
// le attribute per cumulative bucket. One callback reads
// [couponauth.Engine.MetricsSnapshot] per collection.
//
// Callers own the MeterProvider and pass in a Meter.
package otel
