// Package rate implements fixed-window request counters in Redis.
//
// # Window semantics
//
// The first hit in a window creates the counter with a TTL equal to the
// window; later hits increment it. A request that would exceed the limit is
// refused without incrementing, and the remaining TTL is its retry-after.
// Check, increment and expire run as one script, so concurrent requests can
// never push the count past the limit.
//
// Keys have the form <prefix>:rl:<class>:<identity>.
//
// # What this package must NOT do
//
//   - Decide which identity a request is counted under (IP, username).
//   - Fail open when Redis is unreachable.
package rate
