package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionkit/jwt"
	"github.com/MrEthical07/sessionkit/refresh"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
// Callers outside the engine only ever see one collapsed verdict.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureRateLimited
	RotateFailureAccessMalformed
	RotateFailureAccessForged
	RotateFailureRefreshNotFound
	RotateFailureRefreshExpired
	RotateFailureRefreshReplayed
	RotateFailureSubjectMismatch
	RotateFailureSessionMismatch
	RotateFailureUnavailable
	RotateFailureIssue
)

// String returns the reason recorded in audit events and logs.
func (k RotateFailureKind) String() string {
	switch k {
	case RotateFailureNone:
		return "none"
	case RotateFailureRateLimited:
		return "rate_limited"
	case RotateFailureAccessMalformed:
		return "access_malformed"
	case RotateFailureAccessForged:
		return "access_forged"
	case RotateFailureRefreshNotFound:
		return "refresh_not_found"
	case RotateFailureRefreshExpired:
		return "refresh_expired"
	case RotateFailureRefreshReplayed:
		return "refresh_replayed"
	case RotateFailureSubjectMismatch:
		return "subject_mismatch"
	case RotateFailureSessionMismatch:
		return "session_mismatch"
	case RotateFailureUnavailable:
		return "backend_unavailable"
	case RotateFailureIssue:
		return "issue_failed"
	default:
		return "unknown"
	}
}

// Verdict reports whether the failure is a judgement on the presented
// credentials, as opposed to an infrastructure problem.
func (k RotateFailureKind) Verdict() bool {
	switch k {
	case RotateFailureAccessMalformed,
		RotateFailureAccessForged,
		RotateFailureRefreshNotFound,
		RotateFailureRefreshExpired,
		RotateFailureRefreshReplayed,
		RotateFailureSubjectMismatch,
		RotateFailureSessionMismatch:
		return true
	default:
		return false
	}
}

// RotateResult returns either the new pair or a classified failure.
type RotateResult struct {
	Failure   RotateFailureKind
	Err       error
	Subject   int64
	SessionID string
	Issued    IssueResult
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Access   AccessDecoder
	Refresh  RefreshIssuer
	Limiter  RotateLimiter
	ClientID func(context.Context) string
	Issue    func(ctx context.Context, subject int64, sessionID string) IssueResult
}

// RunRotate exchanges an (access, refresh) pair for a new one.
//
// The access token may be expired but must be authentic. The refresh token
// is consumed before the subjects are compared, so a mismatched pair still
// burns the refresh token.
func RunRotate(ctx context.Context, accessToken, refreshToken string, deps RotateDeps) RotateResult {
	if deps.Limiter != nil && deps.ClientID != nil {
		if err := deps.Limiter.CheckRotate(ctx, deps.ClientID(ctx)); err != nil {
			return RotateResult{Failure: RotateFailureRateLimited, Err: err}
		}
	}

	claims, err := deps.Access.Decode(accessToken, jwt.DecodeOptions{IgnoreExpiry: true})
	if err != nil {
		kind := RotateFailureAccessMalformed
		if errors.Is(err, jwt.ErrForged) {
			kind = RotateFailureAccessForged
		}
		return RotateResult{Failure: kind, Err: err}
	}

	rec, err := deps.Refresh.Consume(ctx, refreshToken)
	if err != nil {
		var kind RotateFailureKind
		switch {
		case errors.Is(err, refresh.ErrAlreadyConsumed):
			kind = RotateFailureRefreshReplayed
		case errors.Is(err, refresh.ErrExpired):
			kind = RotateFailureRefreshExpired
		case errors.Is(err, refresh.ErrNotFound):
			kind = RotateFailureRefreshNotFound
		default:
			kind = RotateFailureUnavailable
		}
		return RotateResult{Failure: kind, Err: err, Subject: claims.Subject, SessionID: claims.SessionID}
	}

	if rec.Subject != claims.Subject {
		return RotateResult{Failure: RotateFailureSubjectMismatch, Subject: claims.Subject, SessionID: claims.SessionID}
	}
	if rec.SessionID != claims.SessionID {
		return RotateResult{Failure: RotateFailureSessionMismatch, Subject: claims.Subject, SessionID: claims.SessionID}
	}

	issued := deps.Issue(ctx, rec.Subject, rec.SessionID)
	if issued.Failure != IssueFailureNone {
		kind := RotateFailureIssue
		if errors.Is(issued.Err, refresh.ErrUnavailable) {
			kind = RotateFailureUnavailable
		}
		return RotateResult{Failure: kind, Err: issued.Err, Subject: rec.Subject, SessionID: rec.SessionID}
	}

	return RotateResult{Subject: rec.Subject, SessionID: rec.SessionID, Issued: issued}
}
