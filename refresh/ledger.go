package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a token the ledger has never seen, or one that
	// cannot be a token at all.
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpired reports a token presented at or after its expiry.
	ErrExpired = errors.New("refresh token expired")
	// ErrAlreadyConsumed reports a token that was redeemed before.
	ErrAlreadyConsumed = errors.New("refresh token already consumed")
	// ErrDuplicate is returned by Put when the id is already recorded.
	ErrDuplicate = errors.New("refresh token id already recorded")
	// ErrUnavailable wraps backend failures. It is not a verdict on the
	// token; callers may retry.
	ErrUnavailable = errors.New("refresh ledger unavailable")
)

// Record is the ledger entry for one refresh token. ID is the hex SHA-256
// of the raw token bytes.
type Record struct {
	ID         string
	Subject    int64
	SessionID  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt time.Time
}

// Consumed reports whether the token has been redeemed.
func (r Record) Consumed() bool {
	return !r.ConsumedAt.IsZero()
}

// Ledger persists refresh-token records.
//
// MarkConsumed must be atomic with respect to concurrent callers passing the
// same id: it checks existence, expiry (now >= ExpiresAt is expired) and
// prior consumption, and on success stamps ConsumedAt and returns the
// updated record. Failures are ErrNotFound, ErrExpired, ErrAlreadyConsumed,
// or an error wrapping ErrUnavailable.
type Ledger interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	MarkConsumed(ctx context.Context, id string, now time.Time) (*Record, error)
}

// Reclaimer is implemented by ledgers that can drop dead records in bulk.
// DeleteExpired removes records whose ExpiresAt is before cutoff and
// returns how many were removed.
type Reclaimer interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
