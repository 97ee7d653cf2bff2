// Package flows contains pure-function orchestrators for the Engine's
// session operations.
//
// Each flow function (RunIssue, RunRotate, RunValidate) accepts a typed
// dependency struct and returns a result carrying either the success payload
// or a classified failure. The Engine maps failures onto metrics, audit
// events, and the public error it returns.
//
// # Architecture boundaries
//
// Flows coordinate the token codec, refresh issuer, and rate limiter. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessionkit (to avoid import cycles).
//   - Emit metrics, audit events, or logs.
package flows
