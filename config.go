package sessionkit

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/MrEthical07/sessionkit/jwt"
)

// Config is the complete Engine configuration. It is passed explicitly to
// Builder.WithConfig; nothing is read from package-level state.
type Config struct {
	Password  PasswordConfig
	Token     TokenConfig
	Refresh   RefreshConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets the Argon2id work factor.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds access token signing material and policy.
//
// For ed25519, PrivateKey is required and PublicKey is derived when empty.
// For hs256, PrivateKey is the shared secret (at least 32 bytes).
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	MaxFutureIAT  time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token lifetime and ledger housekeeping.
type RefreshConfig struct {
	TTL time.Duration

	// RedisPrefix namespaces ledger keys when the Redis ledger is used.
	RedisPrefix string
	// Retention keeps redeemed Redis records past expiry so replays still
	// read as consumed.
	Retention time.Duration

	// SweepInterval enables the background sweeper for ledgers that support
	// reclamation. Zero disables it.
	SweepInterval time.Duration
	SweepGrace    time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig throttles failed rotations per client IP. It needs a
// Redis client; see Builder.WithRedis.
type RateLimitConfig struct {
	Enabled           bool
	MaxRotateFailures int
	RotateWindow      time.Duration
}

/*
====================================
AUDIT / METRICS / LOGGING
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and the rotate latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LoggingConfig is used when the Builder has no explicit logger. With
// Enabled false the Engine logs nowhere.
type LoggingConfig struct {
	Enabled bool
	Format  string // "json" (default) or "text"
	Level   string
	Service string
}

// DefaultConfig returns a configuration with production work factors and
// TTLs. Signing keys are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
			MaxFutureIAT:  10 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "srt",
			Retention:   24 * time.Hour,
			SweepGrace:  24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			MaxRotateFailures: 20,
			RotateWindow:      time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Format:  "json",
			Level:   "info",
			Service: "sessionkit",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cross-field consistency. Work factor bounds and key
// parsing are enforced again by the components themselves at Build.
func (c *Config) Validate() error {
	// Password
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password work factor must be > 0")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	method := strings.ToLower(c.Token.SigningMethod)
	if method != "ed25519" && method != "hs256" {
		return errors.New("unsupported Token signing method")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New(method + " requires PrivateKey")
	}
	if method == "hs256" && len(c.Token.PrivateKey) < 32 {
		return errors.New("hs256 PrivateKey must be at least 32 bytes")
	}
	if c.Token.KeyID != "" && len(c.Token.VerifyKeys) > 0 {
		if _, ok := c.Token.VerifyKeys[c.Token.KeyID]; !ok {
			return errors.New("Token KeyID must be present in VerifyKeys")
		}
	}
	if c.Token.MaxFutureIAT < 0 {
		return errors.New("Token MaxFutureIAT must be >= 0")
	}
	if len(c.Token.VerifyKeys) > 0 && strings.TrimSpace(c.Token.KeyID) == "" {
		return errors.New("Token KeyID is required when VerifyKeys is set")
	}
	if _, err := jwt.NewCodec(c.Token.codecConfig(nil)); err != nil {
		return fmt.Errorf("Token keys: %w", err)
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.Token.AccessTTL {
		return errors.New("Refresh TTL must exceed Token AccessTTL")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}
	if c.Refresh.SweepInterval < 0 || c.Refresh.SweepGrace < 0 {
		return errors.New("Refresh sweep settings must be >= 0")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRotateFailures <= 0 {
			return errors.New("RateLimit MaxRotateFailures must be > 0")
		}
		if c.RateLimit.RotateWindow <= 0 {
			return errors.New("RateLimit RotateWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Logging
	if c.Logging.Enabled {
		switch c.Logging.Format {
		case "", "json", "text":
		default:
			return errors.New("Logging Format must be json or text")
		}
	}

	return nil
}

func (c TokenConfig) codecConfig(now func() time.Time) jwt.Config {
	var verifyKeys map[string][]byte
	if len(c.VerifyKeys) > 0 {
		verifyKeys = maps.Clone(c.VerifyKeys)
	}
	return jwt.Config{
		SigningMethod: jwt.SigningMethod(strings.ToLower(c.SigningMethod)),
		PrivateKey:    c.PrivateKey,
		PublicKey:     c.PublicKey,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		MaxFutureIAT:  c.MaxFutureIAT,
		KeyID:         c.KeyID,
		VerifyKeys:    verifyKeys,
		Now:           now,
	}
}
