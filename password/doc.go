// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The parameters travel with the hash, so verification is self-describing.
// [Argon2.Verify] reports NeedsRehash when the stored parameters differ from
// the configured ones; the caller re-hashes and persists on that login.
//
// # Scheduling
//
// Argon2 is deliberately slow and memory hungry. Request paths go through a
// [Pool], which caps concurrent computations and lets callers abandon a wait
// through their context.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Enforce password policy (length, character classes); the Engine does.
//   - Log plaintext passwords.
package password
