// Package sessionkit manages the credential and token lifecycle of a
// login system: Argon2id password hashing, short-lived signed access tokens,
// and single-use rotating refresh tokens.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Engine], [Builder], [Config], and value types
// ([SaltedHash], [SessionTokens], [Principal], [MetricsSnapshot]). Component packages
// (password, jwt, refresh and its ledger backends) are usable on their own; flow
// orchestration, rate limiting, audit dispatch and metrics storage live under internal/.
//
// # Rotation contract
//
// [Engine.Rotate] accepts an access token whose signature is valid even if it has expired,
// together with the refresh token issued alongside it. The refresh token is consumed
// atomically in the ledger, so exactly one of any number of concurrent presentations
// succeeds. Every rejection surfaces as [ErrInvalidSession]; the specific cause is kept
// for metrics, audit events and debug logs.
//
// # What this package must NOT do
//
//   - Store users or look them up; callers persist [SaltedHash] themselves.
//   - Log or audit plaintext credentials, salts, hashes or raw tokens.
//   - Import any sub-package that re-imports sessionkit (no import cycles).
package sessionkit
