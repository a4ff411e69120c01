// Package middleware adapts Engine access token checks to net/http.
//
// # Guards
//
//   - [Guard]: requires `Authorization: Bearer <token>` and stores the
//     resolved account in the request context.
//   - [RequireAdmin]: requires the guarded account to be an admin.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly; the Engine verifies every token.
//   - Reveal why a token was rejected.
package middleware
