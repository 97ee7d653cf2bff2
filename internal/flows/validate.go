package flows

import (
	"errors"

	"github.com/MrEthical07/sessionkit/jwt"
)

// ValidateFailureKind classifies access verification failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMalformed
	ValidateFailureForged
	ValidateFailureExpired
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures verification dependencies.
type ValidateDeps struct {
	Access AccessDecoder
}

// RunValidate verifies a live access token.
func RunValidate(token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Access.Decode(token, jwt.DecodeOptions{})
	if err == nil {
		return ValidateResult{Claims: claims}
	}

	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ValidateResult{Failure: ValidateFailureExpired, Err: err}
	case errors.Is(err, jwt.ErrForged):
		return ValidateResult{Failure: ValidateFailureForged, Err: err}
	default:
		return ValidateResult{Failure: ValidateFailureMalformed, Err: err}
	}
}
