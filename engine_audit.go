package sessionkit

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/sessionkit/internal/audit"
	"github.com/MrEthical07/sessionkit/internal/flows"
)

// AuditErrorCode is the coarse error class written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidSession        AuditErrorCode = "invalid_session"
	auditErrInvalidInput          AuditErrorCode = "invalid_input"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

// emitAudit stamps event with the time, client address and error class and
// queues it on the dispatcher.
func (e *Engine) emitAudit(ctx context.Context, event AuditEvent, err error) {
	if e == nil || e.audit == nil {
		return
	}

	event.Time = e.now().UTC()
	event.ClientIP = ClientIPFromContext(ctx)
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditRotate records a rotate outcome. Replays get their own kind so they
// can be alerted on without parsing reasons.
func (e *Engine) auditRotate(ctx context.Context, res flows.RotateResult, err error) {
	event := AuditEvent{
		Kind:      internalaudit.KindRotateRejected,
		Subject:   res.Subject,
		SessionID: res.SessionID,
		Reason:    rotateAuditReason(res.Failure),
	}
	switch res.Failure {
	case flows.RotateFailureNone:
		event.Kind = internalaudit.KindRotated
		event.Success = true
	case flows.RotateFailureRefreshReplayed:
		event.Kind = internalaudit.KindRefreshReplay
	case flows.RotateFailureRateLimited:
		// Nothing about the caller is known before the limiter runs.
		event.Kind = internalaudit.KindRotateThrottled
		event.Subject, event.SessionID = 0, ""
	}
	e.emitAudit(ctx, event, err)
}

func rotateAuditReason(kind flows.RotateFailureKind) AuditReason {
	switch kind {
	case flows.RotateFailureRateLimited:
		return internalaudit.ReasonRateLimited
	case flows.RotateFailureAccessMalformed:
		return internalaudit.ReasonAccessMalformed
	case flows.RotateFailureAccessForged:
		return internalaudit.ReasonAccessForged
	case flows.RotateFailureRefreshNotFound:
		return internalaudit.ReasonRefreshUnknown
	case flows.RotateFailureRefreshExpired:
		return internalaudit.ReasonRefreshExpired
	case flows.RotateFailureRefreshReplayed:
		return internalaudit.ReasonRefreshReplayed
	case flows.RotateFailureSubjectMismatch:
		return internalaudit.ReasonSubjectMismatch
	case flows.RotateFailureSessionMismatch:
		return internalaudit.ReasonSessionMismatch
	case flows.RotateFailureUnavailable:
		return internalaudit.ReasonLedgerUnavailable
	case flows.RotateFailureIssue:
		return internalaudit.ReasonIssueFailed
	default:
		return internalaudit.ReasonNone
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	// Unavailable first: it is wrapped together with the verdict errors.
	switch {
	case errors.Is(err, ErrLedgerUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrRotateRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrInvalidSession):
		return auditErrInvalidSession
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	default:
		return auditErrInternal
	}
}
