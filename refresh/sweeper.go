package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically deletes expired records from a Reclaimer. It only
// reclaims storage; consumption checks expiry on its own, so a stopped or
// lagging sweeper never changes a verdict.
type Sweeper struct {
	target   Reclaimer
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	logger   *slog.Logger
	onSweep  func(removed int64)

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// SweeperConfig configures a Sweeper. Grace keeps records around for a
// while after expiry so late replays still read as consumed rather than
// not found.
type SweeperConfig struct {
	Interval time.Duration
	Grace    time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	OnSweep  func(removed int64)
}

// NewSweeper validates cfg and returns a stopped Sweeper.
func NewSweeper(target Reclaimer, cfg SweeperConfig) (*Sweeper, error) {
	if target == nil {
		return nil, errors.New("sweeper target is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	if cfg.Grace < 0 {
		return nil, errors.New("sweep grace must not be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Sweeper{
		target:   target,
		interval: cfg.Interval,
		grace:    cfg.Grace,
		now:      cfg.Now,
		logger:   cfg.Logger,
		onSweep:  cfg.OnSweep,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the sweep loop. Calling it more than once is a no-op.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

// SweepOnce runs a single reclamation pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.grace)
	removed, err := s.target.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed, nil
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			removed, err := s.SweepOnce(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("refresh ledger sweep failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				s.logger.Debug("refresh ledger swept", slog.Int64("removed", removed))
			}
		}
	}
}
