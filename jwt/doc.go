// Package jwt encodes and decodes signed access tokens.
//
// Decode classifies every rejection into exactly one of ErrMalformed,
// ErrForged, or ErrExpired, and never hands back claims whose signature has
// not been verified. DecodeOptions.IgnoreExpiry exists for session renewal:
// an expired token still proves the caller once held a session from this
// server.
package jwt
