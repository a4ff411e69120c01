// Package flows contains the orchestrators behind every Engine operation.
//
// Each Run function takes a typed dependency struct and returns a [Result]
// whose [FailureKind] the Engine maps to its public errors, metrics and
// audit events. Flows never build public errors themselves.
//
// # Architecture boundaries
//
// Flows coordinate the account store, refresh store, rate limiter, password
// pool and token codec. They do NOT own any of these; the Engine does, and
// it wraps every store with an operation timeout before handing it over.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import couponauth (to avoid import cycles).
//   - Log plaintext passwords or raw tokens.
package flows
