// Package password salts and hashes user credentials with Argon2id.
//
// # Storage shape
//
// The hash and the salt are separate byte slices, persisted side by side in
// the user record by the caller. A hash is never computed or compared without
// its salt; there is no encoded string form.
//
// # Architecture boundaries
//
// This package owns salt generation, derivation, and constant-time
// verification. Password policy and user lookup belong to the caller.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials.
//   - Import any other sessionkit package.
//   - Log plaintext, salts, or hashes.
package password
