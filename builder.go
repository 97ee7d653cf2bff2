package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/sessionkit/internal/audit"
	"github.com/MrEthical07/sessionkit/internal/flows"
	"github.com/MrEthical07/sessionkit/internal/logging"
	internalmetrics "github.com/MrEthical07/sessionkit/internal/metrics"
	"github.com/MrEthical07/sessionkit/internal/rate"
	"github.com/MrEthical07/sessionkit/jwt"
	"github.com/MrEthical07/sessionkit/password"
	"github.com/MrEthical07/sessionkit/refresh"
	"github.com/MrEthical07/sessionkit/refresh/pgledger"
	"github.com/MrEthical07/sessionkit/refresh/redisledger"
)

// Builder assembles an Engine. A Builder can be used for one Build only.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	postgres  pgledger.Querier
	ledger    refresh.Ledger
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for the refresh ledger (unless
// another ledger is configured) and for rotate throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores refresh tokens in Postgres through db, typically a
// *pgxpool.Pool from pgledger.Connect. The schema must already be migrated.
func (b *Builder) WithPostgres(db pgledger.Querier) *Builder {
	b.postgres = db
	return b
}

// WithLedger sets an explicit refresh ledger, overriding Redis and Postgres.
func (b *Builder) WithLedger(ledger refresh.Ledger) *Builder {
	b.ledger = ledger
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger overrides Config.Logging.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token timestamps and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the rotate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Without
// WithLedger, WithPostgres or WithRedis, refresh tokens live in process
// memory, which only suits tests and single-instance deployments.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger, err := b.buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	codec, err := jwt.NewCodec(cfg.Token.codecConfig(now))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	ledger, backend := b.selectLedger(cfg.Refresh)
	issuer, err := refresh.NewIssuer(ledger, now)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		hasher:  hasher,
		codec:   codec,
		issuer:  issuer,
		ledger:  ledger,
		metrics: internalmetrics.New(cfg.Metrics.Enabled, cfg.Metrics.EnableLatencyHistograms),
		logger:  logger,
		now:     now,
	}

	if cfg.RateLimit.Enabled {
		e.limiter = rate.New(b.redis, rate.Config{
			MaxRotateFailures: cfg.RateLimit.MaxRotateFailures,
			RotateWindow:      cfg.RateLimit.RotateWindow,
		})
	}

	if cfg.Audit.Enabled {
		e.audit = internalaudit.NewDispatcher(internalaudit.Config{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	e.flowDeps = e.buildFlowDeps()

	if cfg.Refresh.SweepInterval > 0 {
		if reclaimer, ok := ledger.(refresh.Reclaimer); ok {
			sweeper, err := refresh.NewSweeper(reclaimer, refresh.SweeperConfig{
				Interval: cfg.Refresh.SweepInterval,
				Grace:    cfg.Refresh.SweepGrace,
				Now:      now,
				Logger:   logger.With("component", "sweeper"),
				OnSweep: func(removed int64) {
					if removed > 0 && e.metrics != nil {
						e.metrics.Add(MetricLedgerSwept, uint64(removed))
					}
				},
			})
			if err != nil {
				e.Close()
				return nil, fmt.Errorf("refresh sweeper: %w", err)
			}
			e.sweeper = sweeper
			sweeper.Start()
		} else {
			logger.Info("refresh ledger reclaims storage itself, sweeper not started", "backend", backend)
		}
	}

	logger.Info("session engine ready",
		"ledger", backend,
		"signing_method", cfg.Token.SigningMethod,
		"access_ttl", cfg.Token.AccessTTL,
		"refresh_ttl", cfg.Refresh.TTL,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	b.built = true
	return e, nil
}

func (b *Builder) buildLogger(cfg LoggingConfig) (*slog.Logger, error) {
	if b.logger != nil {
		return b.logger, nil
	}
	if !cfg.Enabled {
		return logging.Discard(), nil
	}
	logger, err := logging.Setup(logging.Options{
		Service: cfg.Service,
		Format:  cfg.Format,
		Level:   cfg.Level,
	}, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return logger, nil
}

func (b *Builder) selectLedger(cfg RefreshConfig) (refresh.Ledger, string) {
	switch {
	case b.ledger != nil:
		return b.ledger, "custom"
	case b.postgres != nil:
		return pgledger.New(b.postgres), "postgres"
	case b.redis != nil:
		return redisledger.New(b.redis, cfg.RedisPrefix, cfg.Retention), "redis"
	default:
		return refresh.NewMemoryLedger(), "memory"
	}
}

func (e *Engine) buildFlowDeps() flows.Deps {
	issue := flows.IssueDeps{
		Access:     e.codec,
		Refresh:    e.issuer,
		AccessTTL:  e.config.Token.AccessTTL,
		RefreshTTL: e.config.Refresh.TTL,
	}

	rotate := flows.RotateDeps{
		Access:   e.codec,
		Refresh:  e.issuer,
		ClientID: ClientIPFromContext,
		Issue: func(ctx context.Context, subject int64, sessionID string) flows.IssueResult {
			return flows.RunIssue(ctx, subject, sessionID, issue)
		},
	}
	if e.limiter != nil {
		rotate.Limiter = e.limiter
	}

	return flows.Deps{
		Issue:    issue,
		Rotate:   rotate,
		Validate: flows.ValidateDeps{Access: e.codec},
	}
}
