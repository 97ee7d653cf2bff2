package refresh_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/sessionkit/refresh"
)

type countingReclaimer struct {
	calls atomic.Int32
	err   error
}

func (c *countingReclaimer) DeleteExpired(context.Context, time.Time) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestSweeperRemovesExpiredAfterGrace(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ledger := refresh.NewMemoryLedger()

	require.NoError(t, ledger.Put(ctx, refresh.Record{ID: "long-dead", ExpiresAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, ledger.Put(ctx, refresh.Record{ID: "just-dead", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, ledger.Put(ctx, refresh.Record{ID: "live", ExpiresAt: now.Add(time.Hour)}))

	var reported int64
	sweeper, err := refresh.NewSweeper(ledger, refresh.SweeperConfig{
		Interval: time.Minute,
		Grace:    time.Hour,
		Now:      func() time.Time { return now },
		OnSweep:  func(n int64) { reported = n },
	})
	require.NoError(t, err)

	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, int64(1), reported)
	assert.Equal(t, 2, ledger.Len())
}

func TestSweeperLoopRunsAndStops(t *testing.T) {
	target := &countingReclaimer{}
	sweeper, err := refresh.NewSweeper(target, refresh.SweeperConfig{Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	sweeper.Start()
	sweeper.Start()
	require.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
	after := target.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, target.calls.Load())
}

func TestSweeperSurvivesErrors(t *testing.T) {
	target := &countingReclaimer{err: errors.New("boom")}
	sweeper, err := refresh.NewSweeper(target, refresh.SweeperConfig{Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	sweeper.Start()
	require.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, time.Millisecond)
	sweeper.Stop()
}

func TestNewSweeperValidation(t *testing.T) {
	_, err := refresh.NewSweeper(nil, refresh.SweeperConfig{Interval: time.Second})
	require.Error(t, err)
	_, err = refresh.NewSweeper(refresh.NewMemoryLedger(), refresh.SweeperConfig{})
	require.Error(t, err)
	_, err = refresh.NewSweeper(refresh.NewMemoryLedger(), refresh.SweeperConfig{Interval: time.Second, Grace: -time.Second})
	require.Error(t, err)
}
