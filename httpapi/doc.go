// Package httpapi serves the auth Engine over HTTP with a chi router.
//
// Every route runs behind request ids, panic recovery, access logging and
// security headers. Routes under /auth also pass the general per-client
// rate limit, and /auth/me, /auth/logout-all and /auth/change-password
// require a bearer access token.
//
// Errors use one envelope:
//
//	{"status":"error","code":"...","message":"...","errors":[{"field":"...","reason":"..."}]}
//
// Credential and token failures always return the same 401 body.
package httpapi
