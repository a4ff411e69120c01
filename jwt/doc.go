// Package jwt issues and verifies the short-lived HS256 access tokens handed
// to clients after login or refresh.
//
// Claims are {sub, iat, exp, jti, type:"access"}. Verification is stateless:
// signature, expiry, and token type are checked on every call and nothing is
// cached between calls.
//
// # What this package must NOT do
//
//   - Perform I/O or keep a revocation list; refresh tokens handle revocation.
//   - Leak which check failed past the Engine; the three error classes exist
//     for logging and tests only.
package jwt
