package sessionkit

import (
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/sessionkit/internal/audit"
)

// SaltedHash is a stored credential. Hash and Salt are persisted side by
// side by the caller; neither is meaningful without the other.
type SaltedHash struct {
	Hash []byte
	Salt []byte
}

// SessionTokens is the pair handed to a client after login or rotation.
// Both tokens are opaque strings to the client.
type SessionTokens struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	Subject          int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is the verified identity behind an access token.
type Principal struct {
	UserID    int64
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuditEvent is an alias for the internal audit event type.
type AuditEvent = internalaudit.Event

// AuditReason is the internal cause recorded on a rejected event.
type AuditReason = internalaudit.Reason

// AuditSink receives audit events from the Engine's dispatcher.
type AuditSink = internalaudit.Sink

// ChannelSink hands audit events to a consumer over a channel.
type ChannelSink = internalaudit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return make(ChannelSink, buffer)
}

// NewLogAuditSink writes audit events through logger, one record per event,
// ranked by how serious the event is.
func NewLogAuditSink(logger *slog.Logger) AuditSink {
	return internalaudit.NewLogSink(logger)
}
