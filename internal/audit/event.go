package audit

import (
	"log/slog"
	"strconv"
	"time"
)

// Kind names the lifecycle step an event records.
type Kind string

const (
	KindCredentialCreated  Kind = "credential_created"
	KindCredentialRejected Kind = "credential_verify_failure"
	KindSessionIssued      Kind = "session_issued"
	KindSessionIssueFailed Kind = "session_issue_failure"
	KindRotated            Kind = "rotate_success"
	KindRotateRejected     Kind = "rotate_rejected"
	KindRotateThrottled    Kind = "rotate_rate_limited"
	KindRefreshReplay      Kind = "refresh_replay_detected"
)

// Reason is the internal cause of a rejection, classified the way Rotate
// classifies its failures. The caller of Rotate only ever sees one collapsed
// error; the reason stays here.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonAccessMalformed
	ReasonAccessForged
	ReasonRefreshUnknown
	ReasonRefreshExpired
	ReasonRefreshReplayed
	ReasonSubjectMismatch
	ReasonSessionMismatch
	ReasonRateLimited
	ReasonLedgerUnavailable
	ReasonIssueFailed
)

var reasonNames = [...]string{
	ReasonNone:              "",
	ReasonAccessMalformed:   "access_malformed",
	ReasonAccessForged:      "access_forged",
	ReasonRefreshUnknown:    "refresh_not_found",
	ReasonRefreshExpired:    "refresh_expired",
	ReasonRefreshReplayed:   "refresh_replayed",
	ReasonSubjectMismatch:   "subject_mismatch",
	ReasonSessionMismatch:   "session_mismatch",
	ReasonRateLimited:       "rate_limited",
	ReasonLedgerUnavailable: "backend_unavailable",
	ReasonIssueFailed:       "issue_failed",
}

// Reasons lists every non-empty reason in declaration order.
func Reasons() []Reason {
	out := make([]Reason, 0, len(reasonNames)-1)
	for r := ReasonAccessMalformed; int(r) < len(reasonNames); r++ {
		out = append(out, r)
	}
	return out
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

// MarshalText encodes the reason by name so JSON and log output stay
// readable.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Verdict reports whether r is a judgement on the presented credentials
// rather than a throttle or an infrastructure problem.
func (r Reason) Verdict() bool {
	return r >= ReasonAccessMalformed && r <= ReasonSessionMismatch
}

// Event is one audit record. Subject is 0 when the caller could not be
// identified.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Subject   int64     `json:"subject,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Success   bool      `json:"success"`
	Reason    Reason    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Level ranks the event for log-based sinks. A replay means two parties
// held the same refresh token and ranks with backend failures.
func (e Event) Level() slog.Level {
	switch {
	case e.Success:
		return slog.LevelInfo
	case e.Reason == ReasonRefreshReplayed,
		e.Reason == ReasonLedgerUnavailable,
		e.Reason == ReasonIssueFailed:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// LogValue implements slog.LogValuer, omitting unset fields.
func (e Event) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 7)
	attrs = append(attrs, slog.String("kind", string(e.Kind)), slog.Bool("success", e.Success))
	if e.Subject != 0 {
		attrs = append(attrs, slog.String("user_id", strconv.FormatInt(e.Subject, 10)))
	}
	if e.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", e.SessionID))
	}
	if e.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", e.ClientIP))
	}
	if e.Reason != ReasonNone {
		attrs = append(attrs, slog.String("reason", e.Reason.String()))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return slog.GroupValue(attrs...)
}
