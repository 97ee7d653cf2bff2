package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	unix atomic.Int64
}

func newFakeClock(start time.Time) *fakeClock {
	c := &fakeClock{}
	c.unix.Store(start.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.unix.Load()) }

func (c *fakeClock) Advance(d time.Duration) { c.unix.Add(int64(d)) }

func newEdKeys(t testing.TB) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func newTestCodec(t testing.TB, mutate func(*Config)) *Codec {
	t.Helper()
	_, priv := newEdKeys(t)
	cfg := Config{SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "sessionkit"}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCodec(cfg)
	require.NoError(t, err)
	return c
}

// flipSignatureChar swaps one character in the middle of the signature
// segment so the decoded bytes definitely change.
func flipSignatureChar(token string) string {
	dot := strings.LastIndexByte(token, '.')
	b := []byte(token)
	i := dot + (len(token)-dot)/2
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := newTestCodec(t, nil)

	access, err := codec.Encode(42, "lineage-1", 5*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, access.Token)
	assert.NotEmpty(t, access.ID)
	assert.Equal(t, int64(42), access.Subject)
	assert.Equal(t, 5*time.Minute, access.ExpiresAt.Sub(access.IssuedAt))

	claims, err := codec.Decode(access.Token, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.Subject)
	assert.Equal(t, "lineage-1", claims.SessionID)
	assert.Equal(t, access.ID, claims.ID)
	assert.Equal(t, "sessionkit", claims.Issuer)
	assert.True(t, access.IssuedAt.Equal(claims.IssuedAt))
	assert.True(t, access.ExpiresAt.Equal(claims.ExpiresAt))
}

func TestEncodeProducesDistinctIDs(t *testing.T) {
	codec := newTestCodec(t, nil)

	a, err := codec.Encode(1, "s", time.Minute)
	require.NoError(t, err)
	b, err := codec.Encode(1, "s", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestEncodeRejectsBadInput(t *testing.T) {
	codec := newTestCodec(t, nil)

	_, err := codec.Encode(1, "s", 0)
	assert.Error(t, err)
	_, err = codec.Encode(1, "", time.Minute)
	assert.Error(t, err)
}

func TestDecodeExpiredWithSimulatedClock(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(t, func(c *Config) { c.Now = clock.Now })

	access, err := codec.Encode(7, "s", time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = codec.Decode(access.Token, DecodeOptions{})
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = codec.Decode(access.Token, DecodeOptions{})
	require.ErrorIs(t, err, ErrExpired, "exp == now is expired")

	clock.Advance(time.Hour)
	_, err = codec.Decode(access.Token, DecodeOptions{})
	require.ErrorIs(t, err, ErrExpired)

	claims, err := codec.Decode(access.Token, DecodeOptions{IgnoreExpiry: true})
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.Subject)
}

func TestDecodeFlippedSignatureIsForged(t *testing.T) {
	codec := newTestCodec(t, nil)

	access, err := codec.Encode(9, "s", time.Minute)
	require.NoError(t, err)

	_, err = codec.Decode(flipSignatureChar(access.Token), DecodeOptions{})
	require.ErrorIs(t, err, ErrForged)
	assert.NotErrorIs(t, err, ErrMalformed)

	_, err = codec.Decode(flipSignatureChar(access.Token), DecodeOptions{IgnoreExpiry: true})
	require.ErrorIs(t, err, ErrForged)
}

func TestDecodeForeignKeyIsForged(t *testing.T) {
	ours := newTestCodec(t, nil)
	theirs := newTestCodec(t, nil)

	access, err := theirs.Encode(1, "s", time.Minute)
	require.NoError(t, err)

	_, err = ours.Decode(access.Token, DecodeOptions{IgnoreExpiry: true})
	require.ErrorIs(t, err, ErrForged)
}

func TestDecodeForgedBeatsExpired(t *testing.T) {
	clock := newFakeClock(time.Now())
	codec := newTestCodec(t, func(c *Config) { c.Now = clock.Now })

	access, err := codec.Encode(1, "s", time.Minute)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	_, err = codec.Decode(flipSignatureChar(access.Token), DecodeOptions{})
	require.ErrorIs(t, err, ErrForged)
}

func TestDecodeMalformed(t *testing.T) {
	codec := newTestCodec(t, nil)

	hsToken, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wireClaims{
		SID: "s",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":           "",
		"garbage":         "not-a-token",
		"two segments":    "aGVsbG8.d29ybGQ",
		"bad base64":      "!!!.@@@.###",
		"alg none":        "eyJhbGciOiJub25lIn0.eyJzdWIiOiIxIn0.",
		"wrong algorithm": hsToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(token, DecodeOptions{IgnoreExpiry: true})
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeRejectsNonNumericSubject(t *testing.T) {
	_, priv := newEdKeys(t)
	codec, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv})
	require.NoError(t, err)

	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wireClaims{
		SID: "s",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(priv)
	require.NoError(t, err)

	_, err = codec.Decode(token, DecodeOptions{})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeIssuerAndAudiencePinning(t *testing.T) {
	_, priv := newEdKeys(t)
	issuer, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "other", Audience: "api"})
	require.NoError(t, err)
	verifier, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "sessionkit", Audience: "api"})
	require.NoError(t, err)

	access, err := issuer.Encode(1, "s", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Decode(access.Token, DecodeOptions{})
	require.ErrorIs(t, err, ErrMalformed)

	own, err := verifier.Encode(1, "s", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Decode(own.Token, DecodeOptions{})
	require.NoError(t, err)
}

func TestDecodeRejectsFutureIssuedAt(t *testing.T) {
	clock := newFakeClock(time.Now())
	_, priv := newEdKeys(t)
	issuer, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, Now: func() time.Time { return clock.Now().Add(time.Hour) }})
	require.NoError(t, err)
	verifier, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, Now: clock.Now, MaxFutureIAT: time.Minute})
	require.NoError(t, err)

	access, err := issuer.Encode(1, "s", 2*time.Hour)
	require.NoError(t, err)

	_, err = verifier.Decode(access.Token, DecodeOptions{})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestKeyRotation(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)
	keys := map[string][]byte{"k1": oldPub, "k2": newPub}

	oldCodec, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: oldPriv, KeyID: "k1", VerifyKeys: keys})
	require.NoError(t, err)
	newCodec, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: newPriv, KeyID: "k2", VerifyKeys: keys})
	require.NoError(t, err)

	access, err := oldCodec.Encode(5, "s", time.Minute)
	require.NoError(t, err)
	claims, err := newCodec.Decode(access.Token, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), claims.Subject)

	retired, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: newPriv, KeyID: "k2", VerifyKeys: map[string][]byte{"k2": newPub}})
	require.NoError(t, err)
	_, err = retired.Decode(access.Token, DecodeOptions{})
	require.ErrorIs(t, err, ErrMalformed, "unknown kid")
}

func TestVerifyKeySetAcceptsOwnTokens(t *testing.T) {
	pub, priv := newEdKeys(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	tests := map[string]Config{
		"ed25519": {SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: "k1", VerifyKeys: map[string][]byte{"k1": pub}},
		"hs256":   {SigningMethod: MethodHS256, PrivateKey: secret, KeyID: "k1", VerifyKeys: map[string][]byte{"k1": secret}},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(cfg)
			require.NoError(t, err)

			access, err := codec.Encode(9, "s", time.Minute)
			require.NoError(t, err)
			claims, err := codec.Decode(access.Token, DecodeOptions{})
			require.NoError(t, err)
			assert.Equal(t, int64(9), claims.Subject)
		})
	}
}

func TestVerifyOnlyKeySetWithoutKeyID(t *testing.T) {
	pub, priv := newEdKeys(t)

	signer, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: "k1"})
	require.NoError(t, err)
	verifier, err := NewCodec(Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": pub}})
	require.NoError(t, err)

	access, err := signer.Encode(3, "s", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Decode(access.Token, DecodeOptions{})
	require.NoError(t, err)
}

func TestHS256RoundTrip(t *testing.T) {
	codec, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	access, err := codec.Encode(3, "s", time.Minute)
	require.NoError(t, err)
	claims, err := codec.Decode(access.Token, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.Subject)

	_, err = codec.Decode(flipSignatureChar(access.Token), DecodeOptions{})
	require.ErrorIs(t, err, ErrForged)
}

func TestVerifyOnlyCodec(t *testing.T) {
	pub, priv := newEdKeys(t)
	signer, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv})
	require.NoError(t, err)
	verifier, err := NewCodec(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	require.NoError(t, err)

	access, err := signer.Encode(11, "s", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Decode(access.Token, DecodeOptions{})
	require.NoError(t, err)

	_, err = verifier.Encode(11, "s", time.Minute)
	require.ErrorIs(t, err, ErrSigningUnavailable)
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	pub, priv := newEdKeys(t)
	otherPub, _ := newEdKeys(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	tests := map[string]Config{
		"unknown method":    {SigningMethod: "rs256", PublicKey: pub},
		"no ed keys":        {SigningMethod: MethodEd25519},
		"short hs secret":   {SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"bad public key":    {SigningMethod: MethodEd25519, PublicKey: []byte("nope")},
		"kid not in set":    {SigningMethod: MethodEd25519, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}},
		"empty kid":         {SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{" ": pub}},
		"negative iat skew": {SigningMethod: MethodEd25519, PublicKey: pub, MaxFutureIAT: -time.Second},
		"signer without kid": {
			SigningMethod: MethodEd25519, PrivateKey: priv,
			VerifyKeys: map[string][]byte{"k1": pub},
		},
		"signer key not in set": {
			SigningMethod: MethodEd25519, PrivateKey: priv, KeyID: "k1",
			VerifyKeys: map[string][]byte{"k1": otherPub},
		},
		"hs secret not in set": {
			SigningMethod: MethodHS256, PrivateKey: secret, KeyID: "k1",
			VerifyKeys: map[string][]byte{"k1": []byte("fedcba9876543210fedcba9876543210")},
		},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewCodec(cfg)
			assert.Error(t, err)
		})
	}
}
