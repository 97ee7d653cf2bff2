package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionkit/jwt"
	"github.com/MrEthical07/sessionkit/refresh"
)

// IssueFailureKind classifies session issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureAccess
	IssueFailureRefresh
)

// IssueResult carries either a fresh token pair or failure metadata.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Access  jwt.AccessToken
	Refresh refresh.Token
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Access     AccessEncoder
	Refresh    RefreshIssuer
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RunIssue mints an access token and a refresh token for subject, both
// bound to sessionID. The access token is minted first so a signing failure
// never leaves an orphaned ledger record.
func RunIssue(ctx context.Context, subject int64, sessionID string, deps IssueDeps) IssueResult {
	access, err := deps.Access.Encode(subject, sessionID, deps.AccessTTL)
	if err != nil {
		return IssueResult{Failure: IssueFailureAccess, Err: err}
	}

	rt, err := deps.Refresh.Issue(ctx, subject, sessionID, deps.RefreshTTL)
	if err != nil {
		return IssueResult{Failure: IssueFailureRefresh, Err: err}
	}

	return IssueResult{Access: access, Refresh: rt}
}
