package sessionkit

import (
	"errors"

	"github.com/MrEthical07/sessionkit/jwt"
	"github.com/MrEthical07/sessionkit/password"
	"github.com/MrEthical07/sessionkit/refresh"
)

var (
	// ErrInvalidSession is the single verdict for a rejected rotation or
	// access token. The specific cause is only visible in metrics, audit
	// events and debug logs.
	ErrInvalidSession = errors.New("session invalid, please log in again")
	// ErrInvalidCredentials is available to callers that turn a false
	// VerifyCredential into an error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEngineNotReady is returned by methods on a nil Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrRotateRateLimited is wrapped with ErrInvalidSession by Rotate when
	// the client has used up its failed-rotation budget.
	ErrRotateRateLimited = errors.New("rotate rate limited")
	// ErrSessionCreationFailed wraps failures to mint a token pair.
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrInvalidInput reports empty or malformed credential input.
	ErrInvalidInput = password.ErrInvalidInput
	// ErrLedgerUnavailable reports a refresh ledger backend failure.
	// Wrapped alongside ErrInvalidSession or ErrSessionCreationFailed.
	ErrLedgerUnavailable = refresh.ErrUnavailable
	// ErrTokenExpired is wrapped with ErrInvalidSession by VerifyAccess when
	// an otherwise valid access token has expired.
	ErrTokenExpired = jwt.ErrExpired
)
