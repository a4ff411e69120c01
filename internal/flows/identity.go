package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/couponauth/accounts"
)

// IdentityDeps captures access token resolution dependencies.
type IdentityDeps struct {
	// Verify returns the subject of a valid access token.
	Verify   func(token string) (string, error)
	Accounts accounts.Store
}

// RunIdentity verifies an access token and loads its active owner.
func RunIdentity(ctx context.Context, token string, deps IdentityDeps) Result {
	subject, err := deps.Verify(token)
	if err != nil {
		return failed(FailureToken, err)
	}

	acct, err := deps.Accounts.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return failed(FailureCredentials, ErrUnknownAccount)
		}
		return failed(FailureUnavailable, fmt.Errorf("load account: %w", err))
	}
	if !acct.IsActive {
		res := failed(FailureInactive, ErrInactiveAccount)
		res.OwnerID = acct.ID
		return res
	}

	return Result{Account: acct, OwnerID: acct.ID}
}
