package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/logging"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/refresh"
)

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Limiter  Limiter
	Validate func(token string) error
	Accounts accounts.Store
	Refresh  refresh.Store
	Issue    AccessIssuer
	Log      logging.Logger
}

// RunRefresh rotates token and issues an access token for its owner.
//
// Only a token that already had a successor counts as replay. A token that
// was revoked without rotation is an ordinary invalid token.
//
// The successor is revoked again when the owner no longer exists or is
// inactive, so a disabled account cannot keep a session alive.
func RunRefresh(ctx context.Context, identity, token string, deps RefreshDeps) Result {
	log := logOr(deps.Log)

	if res, ok := checkRate(ctx, deps.Limiter, identity, rate.ClassRefresh); !ok {
		return res
	}
	if deps.Validate != nil {
		if err := deps.Validate(token); err != nil {
			return failed(FailureValidation, err)
		}
	}

	next, err := deps.Refresh.Rotate(ctx, token)
	if err != nil {
		var replay *refresh.ReplayError
		switch {
		case errors.As(err, &replay) && replay.Rotated:
			return Result{Failure: FailureReplay, Err: err, OwnerID: replay.OwnerID, Revoked: replay.Revoked}
		case errors.As(err, &replay):
			// Revoked by logout or a password change, not stolen.
			return Result{Failure: FailureToken, Err: err, OwnerID: replay.OwnerID, Revoked: replay.Revoked}
		case errors.Is(err, refresh.ErrNotFound),
			errors.Is(err, refresh.ErrExpired),
			errors.Is(err, refresh.ErrRevoked):
			return failed(FailureToken, err)
		default:
			return failed(FailureUnavailable, fmt.Errorf("rotate: %w", err))
		}
	}

	acct, err := deps.Accounts.GetByID(ctx, next.OwnerID)
	if err == nil && !acct.IsActive {
		err = ErrInactiveAccount
	}
	if err != nil {
		if revokeErr := deps.Refresh.Revoke(ctx, next.Token); revokeErr != nil {
			log.Warn(ctx, "revoke successor failed", "account_id", next.OwnerID, "err", revokeErr)
		}
		res := Result{OwnerID: next.OwnerID, Err: err}
		switch {
		case errors.Is(err, ErrInactiveAccount):
			res.Failure = FailureInactive
		case errors.Is(err, accounts.ErrNotFound):
			res.Failure = FailureCredentials
			res.Err = ErrUnknownAccount
		default:
			res.Failure = FailureUnavailable
			res.Err = fmt.Errorf("load owner: %w", err)
		}
		return res
	}

	access, err := deps.Issue(acct.ID)
	if err != nil {
		return failed(FailureUnavailable, fmt.Errorf("issue access token: %w", err))
	}

	return Result{Account: acct, OwnerID: acct.ID, AccessToken: access, Refresh: next}
}
