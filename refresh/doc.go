// Package refresh issues and redeems single-use opaque refresh tokens.
//
// # Token format
//
// A token is 32 bytes from crypto/rand, base64url encoded without padding.
// Ledgers only ever see the SHA-256 of the raw bytes (hex encoded), so a
// leaked ledger cannot be replayed.
//
// # Single use
//
// Ledger.MarkConsumed is the only place a token changes state, and every
// backend implements it as one atomic check-and-mark: a mutex in
// MemoryLedger, a Lua script in redisledger, a conditional UPDATE in
// pgledger. Of N concurrent consumers of one token exactly one succeeds;
// the rest observe ErrAlreadyConsumed.
//
// # What this package must NOT do
//
//   - Store plaintext tokens.
//   - Decide whether a consumed token belongs to the caller's session; that
//     is the coordinator's job.
package refresh
