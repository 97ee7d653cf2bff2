package pgledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectConfig controls how Connect waits for the database.
type ConnectConfig struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxConns   int32
}

// Connect opens a pool and pings it with exponential backoff, so a service
// starting alongside its database does not fail on the first attempt.
func Connect(ctx context.Context, dsn string, cfg ConnectConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(cfg.MaxRetries, retry.NewExponential(cfg.BaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", cfg.MaxRetries+1).
			Wrap(err)
	}

	return pool, nil
}
