// Package security summarises the Engine's effective security settings for
// startup logs and operators.
//
// # What this package must NOT do
//
//   - Include secret material in a Report.
//   - Perform I/O.
package security
