package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionkit/jwt"
	"github.com/MrEthical07/sessionkit/refresh"
)

// AccessDecoder verifies access tokens.
type AccessDecoder interface {
	Decode(token string, opts jwt.DecodeOptions) (*jwt.Claims, error)
}

// AccessEncoder mints access tokens.
type AccessEncoder interface {
	Encode(subject int64, sessionID string, ttl time.Duration) (jwt.AccessToken, error)
}

// RefreshIssuer mints and redeems refresh tokens.
type RefreshIssuer interface {
	Issue(ctx context.Context, subject int64, sessionID string, ttl time.Duration) (refresh.Token, error)
	Consume(ctx context.Context, token string) (*refresh.Record, error)
}

// RotateLimiter gates rotation attempts per client.
type RotateLimiter interface {
	CheckRotate(ctx context.Context, client string) error
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Issue    IssueDeps
	Rotate   RotateDeps
	Validate ValidateDeps
}
