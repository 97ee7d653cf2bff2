// Package refreshtest holds a behavioral suite every refresh.Ledger
// implementation must pass.
package refreshtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/sessionkit/refresh"
)

// Factory builds a fresh, empty ledger for one subtest.
type Factory func(t *testing.T) refresh.Ledger

// RunLedgerSuite exercises Put, Get and MarkConsumed semantics, including
// the single-winner guarantee under concurrent consumption.
func RunLedgerSuite(t *testing.T, newLedger Factory) {
	t.Helper()

	base := time.Now().UTC().Truncate(time.Second)
	record := func(id string) refresh.Record {
		return refresh.Record{
			ID:        id,
			Subject:   101,
			SessionID: "lineage-" + id,
			IssuedAt:  base,
			ExpiresAt: base.Add(time.Hour),
		}
	}

	t.Run("put then get", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		require.NoError(t, ledger.Put(ctx, record("a1")))

		got, err := ledger.Get(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, int64(101), got.Subject)
		assert.Equal(t, "lineage-a1", got.SessionID)
		assert.True(t, got.ExpiresAt.Equal(base.Add(time.Hour)))
		assert.False(t, got.Consumed())
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := newLedger(t).Get(context.Background(), "missing")
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})

	t.Run("duplicate put", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		require.NoError(t, ledger.Put(ctx, record("d1")))
		require.ErrorIs(t, ledger.Put(ctx, record("d1")), refresh.ErrDuplicate)
	})

	t.Run("consume once", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		require.NoError(t, ledger.Put(ctx, record("c1")))

		got, err := ledger.MarkConsumed(ctx, "c1", base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(101), got.Subject)
		assert.Equal(t, "lineage-c1", got.SessionID)
		assert.True(t, got.Consumed())

		_, err = ledger.MarkConsumed(ctx, "c1", base.Add(2*time.Minute))
		require.ErrorIs(t, err, refresh.ErrAlreadyConsumed)

		stored, err := ledger.Get(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, stored.Consumed())
	})

	t.Run("consume unknown", func(t *testing.T) {
		_, err := newLedger(t).MarkConsumed(context.Background(), "nope", base)
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})

	t.Run("consume expired", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		require.NoError(t, ledger.Put(ctx, record("e1")))

		_, err := ledger.MarkConsumed(ctx, "e1", base.Add(time.Hour))
		require.ErrorIs(t, err, refresh.ErrExpired, "now == expiry is expired")

		stored, err := ledger.Get(ctx, "e1")
		require.NoError(t, err)
		assert.False(t, stored.Consumed(), "expired tokens are not marked")
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		require.NoError(t, ledger.Put(ctx, record("r1")))

		const workers = 16
		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			wins    atomic.Int32
			replays atomic.Int32
			others  = make(chan error, workers)
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := ledger.MarkConsumed(ctx, "r1", base.Add(time.Minute))
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, refresh.ErrAlreadyConsumed):
					replays.Add(1)
				default:
					others <- err
				}
			}()
		}
		close(start)
		wg.Wait()
		close(others)

		for err := range others {
			t.Errorf("unexpected consume error: %v", err)
		}
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(workers-1), replays.Load())
	})
}
