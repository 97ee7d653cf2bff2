package internaldefs

import (
	"github.com/MrEthical07/sessionkit"
	"github.com/MrEthical07/sessionkit/internal/audit"
)

// CounterDef binds a MetricID to its exported name.
type CounterDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its exported name.
type HistogramDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessionkit.MetricCredentialCreated, Name: "sessionkit_credential_created_total", Help: "Credentials hashed for storage."},
	{ID: sessionkit.MetricCredentialVerified, Name: "sessionkit_credential_verified_total", Help: "Password checks that matched."},
	{ID: sessionkit.MetricCredentialRejected, Name: "sessionkit_credential_rejected_total", Help: "Password checks that did not match."},
	{ID: sessionkit.MetricSessionIssued, Name: "sessionkit_session_issued_total", Help: "Token pairs issued for new sessions."},
	{ID: sessionkit.MetricSessionIssueFailed, Name: "sessionkit_session_issue_failed_total", Help: "Session issues that failed."},
	{ID: sessionkit.MetricRotateSuccess, Name: "sessionkit_rotate_success_total", Help: "Successful token rotations."},
	{ID: sessionkit.MetricRotateFailure, Name: "sessionkit_rotate_failure_total", Help: "Rejected or failed token rotations."},
	{ID: sessionkit.MetricRotateAccessMalformed, Name: "sessionkit_rotate_access_malformed_total", Help: "Rotations rejected for an unreadable access token."},
	{ID: sessionkit.MetricRotateAccessForged, Name: "sessionkit_rotate_access_forged_total", Help: "Rotations rejected for a bad access token signature."},
	{ID: sessionkit.MetricRotateRefreshNotFound, Name: "sessionkit_rotate_refresh_not_found_total", Help: "Rotations presenting an unknown refresh token."},
	{ID: sessionkit.MetricRotateRefreshExpired, Name: "sessionkit_rotate_refresh_expired_total", Help: "Rotations presenting an expired refresh token."},
	{ID: sessionkit.MetricRotateRefreshReplayed, Name: "sessionkit_rotate_refresh_replayed_total", Help: "Rotations presenting an already redeemed refresh token."},
	{ID: sessionkit.MetricRotateSubjectMismatch, Name: "sessionkit_rotate_subject_mismatch_total", Help: "Rotations whose tokens belong to different users."},
	{ID: sessionkit.MetricRotateSessionMismatch, Name: "sessionkit_rotate_session_mismatch_total", Help: "Rotations whose tokens belong to different sessions."},
	{ID: sessionkit.MetricRotateRateLimited, Name: "sessionkit_rotate_rate_limited_total", Help: "Rotations refused by the failure limiter."},
	{ID: sessionkit.MetricAccessVerified, Name: "sessionkit_access_verified_total", Help: "Access tokens accepted."},
	{ID: sessionkit.MetricAccessRejected, Name: "sessionkit_access_rejected_total", Help: "Access tokens rejected as malformed or forged."},
	{ID: sessionkit.MetricAccessExpired, Name: "sessionkit_access_expired_total", Help: "Access tokens rejected as expired."},
	{ID: sessionkit.MetricLedgerUnavailable, Name: "sessionkit_ledger_unavailable_total", Help: "Refresh ledger operations that failed on the backend."},
	{ID: sessionkit.MetricLedgerSwept, Name: "sessionkit_ledger_swept_total", Help: "Refresh records removed by the sweeper."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessionkit.MetricRotateLatency, Name: "sessionkit_rotate_latency_seconds", Help: "Rotate latency histogram."},
}

// HistogramBounds are the upper bounds of every bucket but the last, in
// seconds. They match the engine's fixed millisecond buckets.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels names each bucket's upper bound, +Inf included, for
// exporters that carry the bound as an attribute.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// Member is one MetricID within a Family, told apart by Value.
type Member struct {
	ID    sessionkit.MetricID
	Value string
}

// Family folds related counters into one instrument keyed by a single
// attribute, for exporters with dimensional data models.
type Family struct {
	Name    string
	Help    string
	Unit    string
	Key     string
	Members []Member
}

// RotateRejections carries one member per credential verdict. Values are
// the audit reason names, so dashboards and audit trails agree.
var RotateRejections = Family{
	Name: "sessionkit.rotate.rejections",
	Help: "Rotations rejected as a verdict on the presented tokens, by reason.",
	Unit: "{rotation}",
	Key:  "reason",
	Members: []Member{
		{ID: sessionkit.MetricRotateAccessMalformed, Value: audit.ReasonAccessMalformed.String()},
		{ID: sessionkit.MetricRotateAccessForged, Value: audit.ReasonAccessForged.String()},
		{ID: sessionkit.MetricRotateRefreshNotFound, Value: audit.ReasonRefreshUnknown.String()},
		{ID: sessionkit.MetricRotateRefreshExpired, Value: audit.ReasonRefreshExpired.String()},
		{ID: sessionkit.MetricRotateRefreshReplayed, Value: audit.ReasonRefreshReplayed.String()},
		{ID: sessionkit.MetricRotateSubjectMismatch, Value: audit.ReasonSubjectMismatch.String()},
		{ID: sessionkit.MetricRotateSessionMismatch, Value: audit.ReasonSessionMismatch.String()},
	},
}

// Families covers every counter exactly once.
var Families = []Family{
	{
		Name: "sessionkit.credential.operations",
		Help: "Credential hashes created and password checks, by result.",
		Unit: "{operation}",
		Key:  "result",
		Members: []Member{
			{ID: sessionkit.MetricCredentialCreated, Value: "created"},
			{ID: sessionkit.MetricCredentialVerified, Value: "verified"},
			{ID: sessionkit.MetricCredentialRejected, Value: "rejected"},
		},
	},
	{
		Name: "sessionkit.session.issues",
		Help: "Token pairs issued for new sessions, by result.",
		Unit: "{session}",
		Key:  "result",
		Members: []Member{
			{ID: sessionkit.MetricSessionIssued, Value: "issued"},
			{ID: sessionkit.MetricSessionIssueFailed, Value: "failed"},
		},
	},
	{
		Name: "sessionkit.rotate.attempts",
		Help: "Rotate calls, by outcome. Rejected includes backend failures.",
		Unit: "{rotation}",
		Key:  "outcome",
		Members: []Member{
			{ID: sessionkit.MetricRotateSuccess, Value: "success"},
			{ID: sessionkit.MetricRotateFailure, Value: "rejected"},
			{ID: sessionkit.MetricRotateRateLimited, Value: audit.ReasonRateLimited.String()},
		},
	},
	RotateRejections,
	{
		Name: "sessionkit.access.verifications",
		Help: "Access token checks, by result.",
		Unit: "{token}",
		Key:  "result",
		Members: []Member{
			{ID: sessionkit.MetricAccessVerified, Value: "verified"},
			{ID: sessionkit.MetricAccessRejected, Value: "rejected"},
			{ID: sessionkit.MetricAccessExpired, Value: "expired"},
		},
	},
	{
		Name: "sessionkit.ledger.events",
		Help: "Refresh ledger backend failures and swept records.",
		Unit: "{event}",
		Key:  "event",
		Members: []Member{
			{ID: sessionkit.MetricLedgerUnavailable, Value: audit.ReasonLedgerUnavailable.String()},
			{ID: sessionkit.MetricLedgerSwept, Value: "swept"},
		},
	},
}

// NormalizeBuckets copies raw into a fixed array, zero filling missing
// buckets and ignoring extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals; the last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
