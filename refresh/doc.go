// Package refresh stores opaque rotating refresh tokens.
//
// # Token format
//
// A token is 32 random bytes, base64url-encoded without padding. The store
// keeps only the SHA-256 of the decoded bytes, so a database leak does not
// yield usable tokens.
//
// # Rotation
//
// Every successful refresh revokes the presented record and links it to its
// successor through ReplacedBy. Presenting a revoked token again revokes all
// live records of the owner and returns a [ReplayError]. Its Rotated field
// tells theft (the token had a successor) apart from a token revoked by
// logout or a password change.
//
// Two backends implement [Store]: [RedisStore] runs each transition as one
// Lua script, [PostgresStore] uses a conditional UPDATE inside a transaction.
//
// # What this package must NOT do
//
//   - Issue or verify access tokens.
//   - Look up accounts or check whether they are active.
//   - Apply request timeouts; the Engine bounds every call.
package refresh
