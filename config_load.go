package sessionkit

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"access-ttl":          "token.access_ttl",
	"signing-method":      "token.signing_method",
	"key-id":              "token.key_id",
	"issuer":              "token.issuer",
	"audience":            "token.audience",
	"refresh-ttl":         "refresh.ttl",
	"sweep-interval":      "refresh.sweep_interval",
	"rate-limit":          "rate_limit.enabled",
	"max-rotate-failures": "rate_limit.max_rotate_failures",
	"audit":               "audit.enabled",
	"metrics":             "metrics.enabled",
	"log-format":          "logging.format",
	"log-level":           "logging.level",
}

// RegisterFlags adds the overridable configuration flags to fs. Values are
// only applied by LoadConfig when the flag was set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.Duration("access-ttl", d.Token.AccessTTL, "access token lifetime")
	fs.String("signing-method", d.Token.SigningMethod, "access token algorithm (ed25519|hs256)")
	fs.String("key-id", "", "kid header for newly signed access tokens")
	fs.String("issuer", "", "iss claim to set and require")
	fs.String("audience", "", "aud claim to set and require")
	fs.Duration("refresh-ttl", d.Refresh.TTL, "refresh token lifetime")
	fs.Duration("sweep-interval", 0, "ledger sweep interval (0 disables)")
	fs.Bool("rate-limit", d.RateLimit.Enabled, "throttle failed rotations per client IP")
	fs.Int("max-rotate-failures", d.RateLimit.MaxRotateFailures, "failed rotations allowed per window")
	fs.Bool("audit", d.Audit.Enabled, "enable audit events")
	fs.Bool("metrics", d.Metrics.Enabled, "enable in-process metrics")
	fs.String("log-format", d.Logging.Format, "log format (json|text)")
	fs.String("log-level", d.Logging.Level, "log level")
}

// LoadConfig layers DefaultConfig, the YAML file at path (optional), and
// explicitly set flags, in that order. Key material in the file is given
// as PEM or standard base64.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("load config flags: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := applyKoanf(k, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyKoanf(k *koanf.Koanf, cfg *Config) error {
	setUint32(k, "password.memory", &cfg.Password.Memory)
	setUint32(k, "password.time", &cfg.Password.Time)
	if k.Exists("password.parallelism") {
		cfg.Password.Parallelism = uint8(k.Int64("password.parallelism"))
	}
	setUint32(k, "password.salt_length", &cfg.Password.SaltLength)
	setUint32(k, "password.key_length", &cfg.Password.KeyLength)

	if err := setDuration(k, "token.access_ttl", &cfg.Token.AccessTTL); err != nil {
		return err
	}
	setString(k, "token.signing_method", &cfg.Token.SigningMethod)
	setString(k, "token.key_id", &cfg.Token.KeyID)
	setString(k, "token.issuer", &cfg.Token.Issuer)
	setString(k, "token.audience", &cfg.Token.Audience)
	if err := setDuration(k, "token.max_future_iat", &cfg.Token.MaxFutureIAT); err != nil {
		return err
	}

	var err error
	if k.Exists("token.private_key") {
		if cfg.Token.PrivateKey, err = decodeKeyMaterial(k.String("token.private_key")); err != nil {
			return fmt.Errorf("token.private_key: %w", err)
		}
	}
	if k.Exists("token.public_key") {
		if cfg.Token.PublicKey, err = decodeKeyMaterial(k.String("token.public_key")); err != nil {
			return fmt.Errorf("token.public_key: %w", err)
		}
	}
	if k.Exists("token.verify_keys") {
		raw := k.StringMap("token.verify_keys")
		cfg.Token.VerifyKeys = make(map[string][]byte, len(raw))
		for kid, encoded := range raw {
			key, err := decodeKeyMaterial(encoded)
			if err != nil {
				return fmt.Errorf("token.verify_keys.%s: %w", kid, err)
			}
			cfg.Token.VerifyKeys[kid] = key
		}
	}

	for key, dst := range map[string]*time.Duration{
		"refresh.ttl":              &cfg.Refresh.TTL,
		"refresh.retention":        &cfg.Refresh.Retention,
		"refresh.sweep_interval":   &cfg.Refresh.SweepInterval,
		"refresh.sweep_grace":      &cfg.Refresh.SweepGrace,
		"rate_limit.rotate_window": &cfg.RateLimit.RotateWindow,
	} {
		if err := setDuration(k, key, dst); err != nil {
			return err
		}
	}
	setString(k, "refresh.redis_prefix", &cfg.Refresh.RedisPrefix)

	setBool(k, "rate_limit.enabled", &cfg.RateLimit.Enabled)
	if k.Exists("rate_limit.max_rotate_failures") {
		cfg.RateLimit.MaxRotateFailures = k.Int("rate_limit.max_rotate_failures")
	}

	setBool(k, "audit.enabled", &cfg.Audit.Enabled)
	if k.Exists("audit.buffer_size") {
		cfg.Audit.BufferSize = k.Int("audit.buffer_size")
	}
	setBool(k, "audit.drop_if_full", &cfg.Audit.DropIfFull)

	setBool(k, "metrics.enabled", &cfg.Metrics.Enabled)
	setBool(k, "metrics.latency_histograms", &cfg.Metrics.EnableLatencyHistograms)

	setBool(k, "logging.enabled", &cfg.Logging.Enabled)
	setString(k, "logging.format", &cfg.Logging.Format)
	setString(k, "logging.level", &cfg.Logging.Level)
	setString(k, "logging.service", &cfg.Logging.Service)

	return nil
}

func setString(k *koanf.Koanf, key string, dst *string) {
	if k.Exists(key) {
		*dst = k.String(key)
	}
}

func setBool(k *koanf.Koanf, key string, dst *bool) {
	if k.Exists(key) {
		*dst = k.Bool(key)
	}
}

func setUint32(k *koanf.Koanf, key string, dst *uint32) {
	if k.Exists(key) {
		*dst = uint32(k.Int64(key))
	}
}

func setDuration(k *koanf.Koanf, key string, dst *time.Duration) error {
	if !k.Exists(key) {
		return nil
	}
	raw := k.String(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	*dst = d
	return nil
}

// decodeKeyMaterial accepts a PEM block verbatim or standard base64 of the
// raw key bytes.
func decodeKeyMaterial(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("key material is neither PEM nor base64: %w", err)
	}
	return out, nil
}
