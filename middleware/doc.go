// Package middleware adapts a sessionkit.Engine to net/http.
//
//   - [RequireAccess] verifies the bearer access token and stores the
//     resulting Principal in the request context.
//   - [ClientIP] records the peer address for rotate throttling.
//   - [BearerToken] parses an Authorization header for handlers that read
//     the access token themselves, such as a refresh endpoint.
//
// # What this package must NOT do
//
//   - Parse or sign tokens directly (delegates to Engine).
//   - Reveal why a token was rejected.
package middleware
