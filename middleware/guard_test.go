package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/sessionkit"
)

func newEngine(t *testing.T) *sessionkit.Engine {
	t.Helper()
	cfg := sessionkit.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := sessionkit.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"BEARER  abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"Bearerabc", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		token, ok := BearerToken(tc.header)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}

func TestRequireAccess(t *testing.T) {
	engine := newEngine(t)
	tokens, err := engine.IssueSession(t.Context(), 77)
	require.NoError(t, err)

	var seen *sessionkit.Principal
	handler := RequireAccess(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"valid", "Bearer " + tokens.AccessToken, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"refresh token", "Bearer " + tokens.RefreshToken, http.StatusUnauthorized},
		{"garbage", "Bearer x.y.z", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tc.code, rr.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, int64(77), seen.UserID)
	assert.Equal(t, tokens.SessionID, seen.SessionID)
}

func TestRequireAccessNilEngine(t *testing.T) {
	handler := RequireAccess(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestClientIP(t *testing.T) {
	var got string
	handler := ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = sessionkit.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", got)

	req.RemoteAddr = "[2001:db8::1]:443"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "2001:db8::1", got)
}
