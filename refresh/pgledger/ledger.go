// Package pgledger stores refresh-token records in PostgreSQL.
//
// MarkConsumed is one conditional UPDATE, so row-level locking gives the
// single-winner guarantee; the classifying SELECT only runs after the
// update matched nothing.
package pgledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/MrEthical07/sessionkit/refresh"
)

const uniqueViolation = "23505"

// Querier is the subset of pgxpool.Pool the ledger uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements refresh.Ledger and refresh.Reclaimer on PostgreSQL.
type Ledger struct {
	db Querier
}

// New returns a Ledger over db, typically a *pgxpool.Pool.
func New(db Querier) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Put(ctx context.Context, rec refresh.Record) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, subject, session_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Subject, rec.SessionID, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return refresh.ErrDuplicate
		}
		return unavailable("LEDGER_PUT_FAILED", "insert refresh token", rec.ID, err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*refresh.Record, error) {
	row := l.db.QueryRow(ctx, `
		SELECT subject, session_id, issued_at, expires_at, consumed_at
		FROM refresh_tokens
		WHERE id = $1
	`, id)

	rec := refresh.Record{ID: id}
	var consumedAt *time.Time
	err := row.Scan(&rec.Subject, &rec.SessionID, &rec.IssuedAt, &rec.ExpiresAt, &consumedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("LEDGER_GET_FAILED", "select refresh token", id, err)
	}
	if consumedAt != nil {
		rec.ConsumedAt = *consumedAt
	}
	return &rec, nil
}

func (l *Ledger) MarkConsumed(ctx context.Context, id string, now time.Time) (*refresh.Record, error) {
	row := l.db.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2
		RETURNING subject, session_id, issued_at, expires_at
	`, id, now)

	rec := refresh.Record{ID: id, ConsumedAt: now}
	err := row.Scan(&rec.Subject, &rec.SessionID, &rec.IssuedAt, &rec.ExpiresAt)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable("LEDGER_CONSUME_FAILED", "mark refresh token consumed", id, err)
	}

	// Nothing matched; find out why.
	existing, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Consumed() {
		return nil, refresh.ErrAlreadyConsumed
	}
	if !now.Before(existing.ExpiresAt) {
		return nil, refresh.ErrExpired
	}
	// The row changed between the two statements; it can only have been
	// consumed by a concurrent caller.
	return nil, refresh.ErrAlreadyConsumed
}

func (l *Ledger) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("LEDGER_SWEEP_FAILED").
			With("operation", "delete expired refresh tokens").
			Wrap(fmt.Errorf("%w: %v", refresh.ErrUnavailable, err))
	}
	return tag.RowsAffected(), nil
}

func unavailable(code, operation, id string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		With("token_id", id).
		Wrap(fmt.Errorf("%w: %v", refresh.ErrUnavailable, err))
}
