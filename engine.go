package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/MrEthical07/sessionkit/internal/audit"
	"github.com/MrEthical07/sessionkit/internal/flows"
	internalmetrics "github.com/MrEthical07/sessionkit/internal/metrics"
	"github.com/MrEthical07/sessionkit/internal/rate"
	"github.com/MrEthical07/sessionkit/jwt"
	"github.com/MrEthical07/sessionkit/password"
	"github.com/MrEthical07/sessionkit/refresh"
)

// Engine coordinates credential hashing, token issuance, and rotation. It
// holds no per-user state and is safe for concurrent use once built.
type Engine struct {
	config   Config
	hasher   *password.Argon2
	codec    *jwt.Codec
	issuer   *refresh.Issuer
	ledger   refresh.Ledger
	limiter  *rate.Limiter
	sweeper  *refresh.Sweeper
	audit    *internalaudit.Dispatcher
	metrics  *internalmetrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	flowDeps flows.Deps

	closeOnce sync.Once
}

// Close stops the sweeper and flushes pending audit events. It does not
// close clients passed to the Builder.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweeper != nil {
			e.sweeper.Stop()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports audit events lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// CreateCredential salts and hashes plaintext for storage. The bytes of
// plaintext are used exactly as given; no normalization is applied.
func (e *Engine) CreateCredential(ctx context.Context, plaintext string) (SaltedHash, error) {
	if e == nil || e.hasher == nil {
		return SaltedHash{}, ErrEngineNotReady
	}

	salt, err := e.hasher.GenerateSalt()
	if err != nil {
		return SaltedHash{}, err
	}
	hash, err := e.hasher.GenerateHash([]byte(plaintext), salt)
	if err != nil {
		return SaltedHash{}, err
	}

	e.metricInc(MetricCredentialCreated)
	e.emitAudit(ctx, AuditEvent{Kind: internalaudit.KindCredentialCreated, Success: true}, nil)
	return SaltedHash{Hash: hash, Salt: salt}, nil
}

// VerifyCredential reports whether plaintext matches stored. A wrong
// password is (false, nil); an error means the input or the stored record
// is unusable.
func (e *Engine) VerifyCredential(ctx context.Context, plaintext string, stored SaltedHash) (bool, error) {
	if e == nil || e.hasher == nil {
		return false, ErrEngineNotReady
	}

	ok, err := e.hasher.Verify([]byte(plaintext), stored.Salt, stored.Hash)
	if err != nil {
		return false, err
	}
	if !ok {
		e.metricInc(MetricCredentialRejected)
		e.emitAudit(ctx, AuditEvent{Kind: internalaudit.KindCredentialRejected}, nil)
		return false, nil
	}

	e.metricInc(MetricCredentialVerified)
	return true, nil
}

// IssueSession mints a new token pair for userID under a fresh session
// lineage. Call it only after VerifyCredential succeeded.
func (e *Engine) IssueSession(ctx context.Context, userID int64) (*SessionTokens, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	sessionID := uuid.NewString()
	res := flows.RunIssue(ctx, userID, sessionID, e.flowDeps.Issue)
	if res.Failure != flows.IssueFailureNone {
		err := fmt.Errorf("%w: %w", ErrSessionCreationFailed, res.Err)
		if errors.Is(res.Err, ErrLedgerUnavailable) {
			e.metricInc(MetricLedgerUnavailable)
		}
		e.metricInc(MetricSessionIssueFailed)
		e.logger.ErrorContext(ctx, "session issue failed", "user_id", userID, "error", res.Err)
		reason := internalaudit.ReasonIssueFailed
		if errors.Is(res.Err, ErrLedgerUnavailable) {
			reason = internalaudit.ReasonLedgerUnavailable
		}
		e.emitAudit(ctx, AuditEvent{
			Kind:      internalaudit.KindSessionIssueFailed,
			Subject:   userID,
			SessionID: sessionID,
			Reason:    reason,
		}, err)
		return nil, err
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, AuditEvent{Kind: internalaudit.KindSessionIssued, Subject: userID, SessionID: sessionID, Success: true}, nil)
	e.logger.DebugContext(ctx, "session issued", "user_id", userID, "session_id", sessionID)
	return sessionTokens(res), nil
}

// Rotate exchanges an access token (possibly expired) and its refresh token
// for a new pair in the same session lineage. The refresh token is spent
// whether or not rotation succeeds.
//
// Every rejection is ErrInvalidSession. Backend failures additionally wrap
// ErrLedgerUnavailable so callers can retry instead of forcing a new login.
// With rate limiting enabled, a client over budget also gets
// ErrRotateRateLimited wrapped in the same rejection.
func (e *Engine) Rotate(ctx context.Context, accessToken, refreshToken string) (*SessionTokens, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricRotateLatency, time.Since(start))
		}
	}()

	res := flows.RunRotate(ctx, accessToken, refreshToken, e.flowDeps.Rotate)

	switch res.Failure {
	case flows.RotateFailureNone:
		e.metricInc(MetricRotateSuccess)
		e.auditRotate(ctx, res, nil)
		e.logger.DebugContext(ctx, "session rotated", "user_id", res.Subject, "session_id", res.SessionID)
		return sessionTokens(res.Issued), nil

	case flows.RotateFailureRateLimited:
		e.metricInc(MetricRotateRateLimited)
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "rotate limiter unavailable, failing closed", "error", res.Err)
		}
		err := fmt.Errorf("%w: %w", ErrInvalidSession, ErrRotateRateLimited)
		e.auditRotate(ctx, res, err)
		return nil, err

	case flows.RotateFailureUnavailable, flows.RotateFailureIssue:
		var err error
		if res.Failure == flows.RotateFailureUnavailable {
			e.metricInc(MetricLedgerUnavailable)
			err = fmt.Errorf("%w: %w", ErrInvalidSession, res.Err)
		} else {
			err = fmt.Errorf("%w: %w", ErrInvalidSession, ErrSessionCreationFailed)
		}
		e.metricInc(MetricRotateFailure)
		e.logger.ErrorContext(ctx, "session rotation failed",
			"reason", res.Failure.String(),
			"user_id", res.Subject,
			"session_id", res.SessionID,
			"error", res.Err,
		)
		e.auditRotate(ctx, res, err)
		return nil, err
	}

	e.recordRotateVerdict(ctx, res)
	return nil, ErrInvalidSession
}

func (e *Engine) recordRotateVerdict(ctx context.Context, res flows.RotateResult) {
	e.metricInc(MetricRotateFailure)
	if id, ok := rotateFailureMetric(res.Failure); ok {
		e.metricInc(id)
	}

	if e.limiter != nil {
		if err := e.limiter.RecordRotateFailure(ctx, ClientIPFromContext(ctx)); err != nil &&
			!errors.Is(err, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "record rotate failure", "error", err)
		}
	}

	if res.Failure == flows.RotateFailureRefreshReplayed {
		// A replay means two parties held the same refresh token.
		e.logger.WarnContext(ctx, "refresh token replay",
			"user_id", res.Subject,
			"session_id", res.SessionID,
			"client_ip", ClientIPFromContext(ctx),
		)
	} else {
		e.logger.DebugContext(ctx, "session rotation rejected",
			"reason", res.Failure.String(),
			"user_id", res.Subject,
			"session_id", res.SessionID,
		)
	}
	e.auditRotate(ctx, res, ErrInvalidSession)
}

func rotateFailureMetric(kind flows.RotateFailureKind) (MetricID, bool) {
	switch kind {
	case flows.RotateFailureAccessMalformed:
		return MetricRotateAccessMalformed, true
	case flows.RotateFailureAccessForged:
		return MetricRotateAccessForged, true
	case flows.RotateFailureRefreshNotFound:
		return MetricRotateRefreshNotFound, true
	case flows.RotateFailureRefreshExpired:
		return MetricRotateRefreshExpired, true
	case flows.RotateFailureRefreshReplayed:
		return MetricRotateRefreshReplayed, true
	case flows.RotateFailureSubjectMismatch:
		return MetricRotateSubjectMismatch, true
	case flows.RotateFailureSessionMismatch:
		return MetricRotateSessionMismatch, true
	default:
		return 0, false
	}
}

// VerifyAccess checks a live access token for callers that authorize
// requests. Any failure is ErrInvalidSession; an expired but authentic
// token also wraps ErrTokenExpired.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunValidate(accessToken, e.flowDeps.Validate)
	switch res.Failure {
	case flows.ValidateFailureNone:
		e.metricInc(MetricAccessVerified)
		c := res.Claims
		return &Principal{
			UserID:    c.Subject,
			SessionID: c.SessionID,
			TokenID:   c.ID,
			IssuedAt:  c.IssuedAt,
			ExpiresAt: c.ExpiresAt,
		}, nil
	case flows.ValidateFailureExpired:
		e.metricInc(MetricAccessExpired)
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, ErrTokenExpired)
	default:
		e.metricInc(MetricAccessRejected)
		e.logger.DebugContext(ctx, "access token rejected", "error", res.Err)
		return nil, ErrInvalidSession
	}
}

func sessionTokens(res flows.IssueResult) *SessionTokens {
	return &SessionTokens{
		AccessToken:      res.Access.Token,
		RefreshToken:     res.Refresh.Value,
		SessionID:        res.Access.SessionID,
		Subject:          res.Access.Subject,
		AccessExpiresAt:  res.Access.ExpiresAt,
		RefreshExpiresAt: res.Refresh.ExpiresAt,
	}
}
