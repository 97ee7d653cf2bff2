package pgledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/sessionkit/refresh"
)

var (
	selectCols  = []string{"subject", "session_id", "issued_at", "expires_at", "consumed_at"}
	consumeCols = []string{"subject", "session_id", "issued_at", "expires_at"}
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestPut(t *testing.T) {
	now := time.Now().UTC()
	rec := refresh.Record{ID: "h1", Subject: 7, SessionID: "s1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
		code    string
	}{
		{
			name: "inserted",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO refresh_tokens`).
					WithArgs("h1", int64(7), "s1", now, now.Add(time.Hour)).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate id",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO refresh_tokens`).
					WithArgs("h1", int64(7), "s1", now, now.Add(time.Hour)).
					WillReturnError(&pgconn.PgError{Code: "23505"})
			},
			wantErr: refresh.ErrDuplicate,
		},
		{
			name: "connection lost",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO refresh_tokens`).
					WithArgs("h1", int64(7), "s1", now, now.Add(time.Hour)).
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: refresh.ErrUnavailable,
			code:    "LEDGER_PUT_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			err := New(mock).Put(context.Background(), rec)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			if tt.code != "" {
				oopsErr, ok := oops.AsOops(err)
				require.True(t, ok)
				assert.Equal(t, tt.code, oopsErr.Code())
			}
		})
	}
}

func TestGet(t *testing.T) {
	now := time.Now().UTC()
	consumed := now.Add(time.Minute)

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT subject, session_id, issued_at, expires_at, consumed_at`).
			WithArgs("h1").
			WillReturnRows(pgxmock.NewRows(selectCols).AddRow(int64(7), "s1", now, now.Add(time.Hour), &consumed))

		rec, err := New(mock).Get(context.Background(), "h1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), rec.Subject)
		assert.Equal(t, "s1", rec.SessionID)
		assert.True(t, rec.ConsumedAt.Equal(consumed))
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT subject, session_id`).
			WithArgs("nope").
			WillReturnRows(pgxmock.NewRows(selectCols))

		_, err := New(mock).Get(context.Background(), "nope")
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})
}

func TestMarkConsumed(t *testing.T) {
	now := time.Now().UTC()
	issued := now.Add(-time.Minute)
	expires := now.Add(time.Hour)
	earlier := now.Add(-time.Second)

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "redeemed",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE refresh_tokens`).
					WithArgs("h1", now).
					WillReturnRows(pgxmock.NewRows(consumeCols).AddRow(int64(7), "s1", issued, expires))
			},
		},
		{
			name: "unknown",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE refresh_tokens`).
					WithArgs("h1", now).
					WillReturnRows(pgxmock.NewRows(consumeCols))
				mock.ExpectQuery(`SELECT subject, session_id`).
					WithArgs("h1").
					WillReturnRows(pgxmock.NewRows(selectCols))
			},
			wantErr: refresh.ErrNotFound,
		},
		{
			name: "replayed",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE refresh_tokens`).
					WithArgs("h1", now).
					WillReturnRows(pgxmock.NewRows(consumeCols))
				mock.ExpectQuery(`SELECT subject, session_id`).
					WithArgs("h1").
					WillReturnRows(pgxmock.NewRows(selectCols).AddRow(int64(7), "s1", issued, expires, &earlier))
			},
			wantErr: refresh.ErrAlreadyConsumed,
		},
		{
			name: "expired",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE refresh_tokens`).
					WithArgs("h1", now).
					WillReturnRows(pgxmock.NewRows(consumeCols))
				mock.ExpectQuery(`SELECT subject, session_id`).
					WithArgs("h1").
					WillReturnRows(pgxmock.NewRows(selectCols).AddRow(int64(7), "s1", issued, now, (*time.Time)(nil)))
			},
			wantErr: refresh.ErrExpired,
		},
		{
			name: "database down",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`UPDATE refresh_tokens`).
					WithArgs("h1", now).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: refresh.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			rec, err := New(mock).MarkConsumed(context.Background(), "h1", now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(7), rec.Subject)
			assert.Equal(t, "s1", rec.SessionID)
			assert.True(t, rec.ConsumedAt.Equal(now))
		})
	}
}

func TestDeleteExpired(t *testing.T) {
	cutoff := time.Now().UTC()

	mock := newMock(t)
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := New(mock).DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestLedgerSatisfiesInterfaces(t *testing.T) {
	var _ refresh.Ledger = (*Ledger)(nil)
	var _ refresh.Reclaimer = (*Ledger)(nil)
}
