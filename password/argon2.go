package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	maxMemoryKB    uint32 = 1024 * 1024
	minTimeCost    uint32 = 1
	maxTimeCost    uint32 = 16
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	maxSaltLength  uint32 = 64
	minKeyLength   uint32 = 16
	maxKeyLength   uint32 = 64
)

// ErrInvalidInput is returned when a plaintext, salt, or expected hash is
// empty or has the wrong length. Callers get it wrapped with detail; match
// with errors.Is.
var ErrInvalidInput = errors.New("invalid hashing input")

// Config holds the Argon2id work factor and output sizes.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Argon2 derives salted Argon2id hashes. It holds no mutable state and is
// safe for concurrent use.
type Argon2 struct {
	config Config
	rand   io.Reader
}

// NewArgon2 validates cfg and returns a hasher.
//
// The work factor is bounded on both sides: too low and stored hashes are
// cheap to brute force, too high and every login becomes a DoS lever.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg, rand: rand.Reader}, nil
}

// Params returns the active configuration.
func (a *Argon2) Params() Config {
	return a.config
}

// GenerateSalt returns SaltLength bytes from crypto/rand.
func (a *Argon2) GenerateSalt() ([]byte, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}

// GenerateHash derives the Argon2id hash of plaintext under salt. The same
// (plaintext, salt) always yields the same hash for a given Config.
//
// Plaintext bytes are used exactly as provided (no Unicode normalization).
func (a *Argon2) GenerateHash(plaintext, salt []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrInvalidInput)
	}
	if err := a.checkSalt(salt); err != nil {
		return nil, err
	}

	return argon2.IDKey(
		plaintext,
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	), nil
}

// Verify recomputes the hash of plaintext under salt and compares it with
// expectedHash in constant time. A mismatch is (false, nil); only malformed
// input produces an error.
func (a *Argon2) Verify(plaintext, salt, expectedHash []byte) (bool, error) {
	if len(expectedHash) == 0 {
		return false, fmt.Errorf("%w: empty expected hash", ErrInvalidInput)
	}
	if uint32(len(expectedHash)) != a.config.KeyLength {
		return false, fmt.Errorf("%w: expected hash length %d, want %d", ErrInvalidInput, len(expectedHash), a.config.KeyLength)
	}

	computed, err := a.GenerateHash(plaintext, salt)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(computed, expectedHash) == 1, nil
}

func (a *Argon2) checkSalt(salt []byte) error {
	switch {
	case len(salt) == 0:
		return fmt.Errorf("%w: empty salt", ErrInvalidInput)
	case uint32(len(salt)) < minSaltLength:
		return fmt.Errorf("%w: salt shorter than %d bytes", ErrInvalidInput, minSaltLength)
	case uint32(len(salt)) > maxSaltLength:
		return fmt.Errorf("%w: salt longer than %d bytes", ErrInvalidInput, maxSaltLength)
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB || cfg.Memory > maxMemoryKB {
		return errors.New("password memory must be within [8192, 1048576] KiB")
	}
	if cfg.Time < minTimeCost || cfg.Time > maxTimeCost {
		return errors.New("password time must be within [1, 16]")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength || cfg.SaltLength > maxSaltLength {
		return errors.New("password salt length must be within [16, 64]")
	}
	if cfg.KeyLength < minKeyLength || cfg.KeyLength > maxKeyLength {
		return errors.New("password key length must be within [16, 64]")
	}

	return nil
}
