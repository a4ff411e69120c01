package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/refresh"
)

// PasswordDeps captures password change dependencies.
type PasswordDeps struct {
	Limiter  Limiter
	Accounts accounts.Store
	Refresh  refresh.Store
	Hasher   Hasher
	// ValidateNext applies the password policy to the replacement.
	ValidateNext func(current, next string) error
}

// RunChangePassword verifies current, stores the hash of next and revokes
// every refresh record of the account. A wrong current password is a
// validation failure carrying ErrBadPassword.
func RunChangePassword(ctx context.Context, accountID, current, next string, deps PasswordDeps) Result {
	if res, ok := checkRate(ctx, deps.Limiter, accountID, rate.ClassPasswordChange); !ok {
		return res
	}

	acct, err := deps.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return failed(FailureCredentials, ErrUnknownAccount)
		}
		return failed(FailureUnavailable, fmt.Errorf("load account: %w", err))
	}
	if !acct.IsActive {
		return failed(FailureInactive, ErrInactiveAccount)
	}

	verdict, err := deps.Hasher.Verify(ctx, current, acct.PasswordHash)
	if err != nil {
		return hashFailure(err)
	}
	if !verdict.Match {
		res := failed(FailureValidation, ErrBadPassword)
		res.OwnerID = acct.ID
		return res
	}

	if deps.ValidateNext != nil {
		if err := deps.ValidateNext(current, next); err != nil {
			return failed(FailureValidation, err)
		}
	}

	hash, err := deps.Hasher.Hash(ctx, next)
	if err != nil {
		return failed(FailureUnavailable, fmt.Errorf("hash password: %w", err))
	}
	if err := deps.Accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		return failed(FailureUnavailable, fmt.Errorf("update password: %w", err))
	}

	n, err := deps.Refresh.RevokeAll(ctx, acct.ID)
	if err != nil {
		return failed(FailureUnavailable, fmt.Errorf("revoke sessions: %w", err))
	}

	return Result{Account: acct, OwnerID: acct.ID, Revoked: n}
}
