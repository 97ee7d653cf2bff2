package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxRotateFailures int
	RotateWindow      time.Duration
}

// Limiter counts failed session rotations per client using Redis fixed
// windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRotate returns ErrRateLimited when client has used up its failure
// budget for the current window. It does not count the attempt.
func (l *Limiter) CheckRotate(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}
	return l.checkCounter(ctx, rotateKey(client), l.config.MaxRotateFailures)
}

// RecordRotateFailure counts one rejected rotation for client.
func (l *Limiter) RecordRotateFailure(ctx context.Context, client string) error {
	if client == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, rotateKey(client), l.config.RotateWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRotateFailures) {
		return ErrRateLimited
	}
	return nil
}

// RotateFailures returns the failure count in the current window.
func (l *Limiter) RotateFailures(ctx context.Context, client string) (int, error) {
	count, err := l.redis.Get(ctx, rotateKey(client)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func rotateKey(client string) string {
	return "srl:rot:" + client
}
