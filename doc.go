// Package couponauth is the credential and session core of the household
// coupon tracker: registration, login, refresh token rotation, logout and
// access token resolution.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. No session state lives in process memory; refresh
// records sit in Redis or Postgres and rate counters in Redis, so any
// number of instances can serve the same users.
//
// # Architecture boundaries
//
// couponauth is the public surface. It exposes [Engine], [Builder], [Config]
// and the error taxonomy ([ErrValidation], [ErrAuthentication],
// [ErrRateLimited], [ErrConflict], [ErrDependencyUnavailable]). Orchestration
// lives in internal/flows, counters in internal/rate, audit delivery in
// internal/audit. The HTTP surface is package httpapi.
//
// # What this package must NOT do
//
//   - Tell a caller which credential check failed.
//   - Treat a store timeout as success; every dependency error fails closed.
//   - Log or return plaintext passwords, raw refresh tokens or hashes.
package couponauth
