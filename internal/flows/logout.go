package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/couponauth/refresh"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Refresh refresh.Store
}

// RunLogout revokes token. Unknown, garbage and already revoked tokens
// succeed.
func RunLogout(ctx context.Context, token string, deps LogoutDeps) Result {
	if err := deps.Refresh.Revoke(ctx, token); err != nil {
		return failed(FailureUnavailable, fmt.Errorf("revoke: %w", err))
	}
	return Result{}
}

// RunLogoutAll revokes every live refresh record of accountID.
func RunLogoutAll(ctx context.Context, accountID string, deps LogoutDeps) Result {
	n, err := deps.Refresh.RevokeAll(ctx, accountID)
	if err != nil {
		return failed(FailureUnavailable, fmt.Errorf("revoke all: %w", err))
	}
	return Result{OwnerID: accountID, Revoked: n}
}
