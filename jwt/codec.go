package jwt

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed reports a token that is structurally invalid, names the
	// wrong algorithm or an unknown key, or carries unusable claims.
	ErrMalformed = errors.New("token malformed")
	// ErrForged reports a well-formed token whose signature does not verify.
	ErrForged = errors.New("token signature invalid")
	// ErrExpired reports an authentic token whose expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrSigningUnavailable is returned by Encode on a verify-only codec.
	ErrSigningUnavailable = errors.New("codec has no signing key")
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Config carries signing material and validation policy for a Codec.
//
// For Ed25519, PrivateKey may be omitted to build a verify-only codec. Keys
// are either raw (ed25519.PrivateKeySize / PublicKeySize bytes) or PEM.
// For HS256, PrivateKey is the shared secret.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// DecodeOptions tunes a single Decode call.
type DecodeOptions struct {
	IgnoreExpiry bool
}

// AccessToken is a freshly encoded token together with the values it
// carries, so callers need not decode what they just produced.
type AccessToken struct {
	Token     string
	Subject   int64
	SessionID string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims are the verified contents of an access token.
type Claims struct {
	Subject   int64
	SessionID string
	ID        string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	config     Config
	method     jwt.SigningMethod
	signKey    any
	verifyKey  any
	verifyKeys map[string]any
	now        func() time.Time
}

// NewCodec validates cfg and pre-parses all key material.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	c := &Codec{config: cfg, now: cfg.Now}
	if c.now == nil {
		c.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.PrivateKey
		c.verifyKey = cfg.PrivateKey
	case MethodEd25519, "":
		c.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			c.signKey = priv
			c.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKey = pub
		}
		if c.verifyKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a public key or verify key set")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		c.verifyKeys = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := c.verifyKeyFromBytes(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			c.verifyKeys[kid] = key
		}
		if cfg.KeyID != "" {
			if _, ok := c.verifyKeys[cfg.KeyID]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
		// A signing codec must be able to verify what it mints.
		if c.signKey != nil {
			if cfg.KeyID == "" {
				return nil, errors.New("KeyID is required when VerifyKeys is set")
			}
			if !c.signerMatches(c.verifyKeys[cfg.KeyID]) {
				return nil, errors.New("VerifyKeys entry for KeyID does not match the signing key")
			}
		}
	}

	return c, nil
}

// Encode mints a token for subject in the given session lineage, valid for
// ttl from now.
func (c *Codec) Encode(subject int64, sessionID string, ttl time.Duration) (AccessToken, error) {
	if c.signKey == nil {
		return AccessToken{}, ErrSigningUnavailable
	}
	if ttl <= 0 {
		return AccessToken{}, errors.New("access token ttl must be positive")
	}
	if sessionID == "" {
		return AccessToken{}, errors.New("session id is required")
	}

	// NumericDate has second precision; truncate so the returned fields
	// match what Decode will report.
	now := c.now().Truncate(time.Second)
	exp := now.Add(ttl)
	id := uuid.NewString()

	claims := wireClaims{
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject, 10),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	token := jwt.NewWithClaims(c.method, claims)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}

	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return AccessToken{
		Token:     signed,
		Subject:   subject,
		SessionID: sessionID,
		ID:        id,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Decode verifies token and returns its claims.
//
// Checks run in order: structure, algorithm, signature, payload, expiry.
// The first failing check decides the error kind.
func (c *Codec) Decode(token string, opts DecodeOptions) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(token, &wireClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if alg := unverified.Method.Alg(); alg != c.method.Alg() {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrMalformed, alg)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, &wireClaims{}, c.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrForged, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	wc, ok := parsed.Claims.(*wireClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformed)
	}
	claims, err := c.checkPayload(wc)
	if err != nil {
		return nil, err
	}

	if !opts.IgnoreExpiry && !c.now().Before(claims.ExpiresAt) {
		return nil, ErrExpired
	}

	return claims, nil
}

func (c *Codec) checkPayload(wc *wireClaims) (*Claims, error) {
	subject, err := strconv.ParseInt(wc.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrMalformed)
	}
	if wc.SID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformed)
	}
	if wc.ExpiresAt == nil || wc.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat or exp", ErrMalformed)
	}
	if c.config.Issuer != "" && wc.Issuer != c.config.Issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrMalformed)
	}
	if c.config.Audience != "" && !slices.Contains(wc.Audience, c.config.Audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrMalformed)
	}
	if wc.IssuedAt.After(c.now().Add(c.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrMalformed)
	}

	return &Claims{
		Subject:   subject,
		SessionID: wc.SID,
		ID:        wc.ID,
		Issuer:    wc.Issuer,
		IssuedAt:  wc.IssuedAt.Time,
		ExpiresAt: wc.ExpiresAt.Time,
	}, nil
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)

	if len(c.verifyKeys) > 0 {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := c.verifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	if c.config.KeyID != "" && kid != c.config.KeyID {
		return nil, errors.New("unknown kid")
	}
	return c.verifyKey, nil
}

func (c *Codec) signerMatches(key any) bool {
	switch signer := c.signKey.(type) {
	case ed25519.PrivateKey:
		pub, ok := key.(ed25519.PublicKey)
		return ok && pub.Equal(signer.Public())
	case []byte:
		secret, ok := key.([]byte)
		return ok && subtle.ConstantTimeCompare(secret, signer) == 1
	}
	return false
}

func (c *Codec) verifyKeyFromBytes(key []byte) (any, error) {
	if c.method == jwt.SigningMethodHS256 {
		if len(key) < 32 {
			return nil, errors.New("hs256 secret shorter than 32 bytes")
		}
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
