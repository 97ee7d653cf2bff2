package sessionkit

import (
	internalmetrics "github.com/MrEthical07/sessionkit/internal/metrics"
)

// MetricID identifies a counter or histogram in MetricsSnapshot.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of the Engine's metrics.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricCredentialCreated     = internalmetrics.CredentialCreated
	MetricCredentialVerified    = internalmetrics.CredentialVerified
	MetricCredentialRejected    = internalmetrics.CredentialRejected
	MetricSessionIssued         = internalmetrics.SessionIssued
	MetricSessionIssueFailed    = internalmetrics.SessionIssueFailed
	MetricRotateSuccess         = internalmetrics.RotateSuccess
	MetricRotateFailure         = internalmetrics.RotateFailure
	MetricRotateAccessMalformed = internalmetrics.RotateAccessMalformed
	MetricRotateAccessForged    = internalmetrics.RotateAccessForged
	MetricRotateRefreshNotFound = internalmetrics.RotateRefreshNotFound
	MetricRotateRefreshExpired  = internalmetrics.RotateRefreshExpired
	MetricRotateRefreshReplayed = internalmetrics.RotateRefreshReplayed
	MetricRotateSubjectMismatch = internalmetrics.RotateSubjectMismatch
	MetricRotateSessionMismatch = internalmetrics.RotateSessionMismatch
	MetricRotateRateLimited     = internalmetrics.RotateRateLimited
	MetricAccessVerified        = internalmetrics.AccessVerified
	MetricAccessRejected        = internalmetrics.AccessRejected
	MetricAccessExpired         = internalmetrics.AccessExpired
	MetricLedgerUnavailable     = internalmetrics.LedgerUnavailable
	MetricLedgerSwept           = internalmetrics.LedgerSwept

	// MetricRotateLatency is the only histogram.
	MetricRotateLatency = internalmetrics.RotateLatency
)

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// MetricsSnapshot returns current counter and histogram values. Disabled
// metrics yield empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}
