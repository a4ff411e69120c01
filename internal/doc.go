// Package internal holds helpers private to couponauth, including refresh
// token generation.
//
// # Sub-packages
//
//   - audit: asynchronous event dispatch with log and Kafka sinks
//   - bootstrap: config loading and process wiring for cmd/couponauth
//   - flows: one orchestrator per Engine operation
//   - logging: the Logger interface over log/slog
//   - migrations: goose-managed Postgres schema
//   - rate: Redis fixed-window counters
//   - security: startup report of effective security settings
//
// # What this package must NOT do
//
//   - Export types that appear in the public couponauth API.
package internal
