package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Token is a freshly issued refresh token. Value is what the client holds;
// it is returned exactly once and never persisted.
type Token struct {
	Value     string
	ID        string
	Subject   int64
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints refresh tokens into a Ledger and redeems them.
type Issuer struct {
	ledger Ledger
	now    func() time.Time
	rand   io.Reader
}

// NewIssuer returns an Issuer over ledger. A nil now uses time.Now.
func NewIssuer(ledger Ledger, now func() time.Time) (*Issuer, error) {
	if ledger == nil {
		return nil, errors.New("refresh ledger is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{ledger: ledger, now: now, rand: defaultRand}, nil
}

// Issue records a new token bound to subject and sessionID, expiring ttl
// from now.
func (i *Issuer) Issue(ctx context.Context, subject int64, sessionID string, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		return Token{}, errors.New("refresh token ttl must be positive")
	}

	value, id, err := newSecret(i.rand)
	if err != nil {
		return Token{}, err
	}

	now := i.now()
	rec := Record{
		ID:        id,
		Subject:   subject,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := i.ledger.Put(ctx, rec); err != nil {
		return Token{}, fmt.Errorf("record refresh token: %w", err)
	}

	return Token{
		Value:     value,
		ID:        id,
		Subject:   subject,
		SessionID: sessionID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Consume redeems token. It succeeds at most once per token across all
// callers sharing the ledger. A token that does not decode is ErrNotFound.
func (i *Issuer) Consume(ctx context.Context, token string) (*Record, error) {
	id, err := LedgerID(token)
	if err != nil {
		return nil, ErrNotFound
	}
	return i.ledger.MarkConsumed(ctx, id, i.now())
}

// Lookup returns the record for token without changing it.
func (i *Issuer) Lookup(ctx context.Context, token string) (*Record, error) {
	id, err := LedgerID(token)
	if err != nil {
		return nil, ErrNotFound
	}
	return i.ledger.Get(ctx, id)
}
