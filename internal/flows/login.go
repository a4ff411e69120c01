package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/logging"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/refresh"
)

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Limiter        Limiter
	Validate       func(email, password string) error
	Accounts       accounts.Store
	Refresh        refresh.Store
	Hasher         Hasher
	Issue          AccessIssuer
	UpgradeOnLogin bool
	Now            func() time.Time
	Log            logging.Logger
}

// RunLogin authenticates email and password and opens a session.
//
// An unknown email still costs one Argon2 verification so the two failure
// paths take the same time. Validate runs after the rate check so empty
// submissions still spend the caller's budget. Inactive accounts are only
// reported after the password matched.
func RunLogin(ctx context.Context, identity, email, password string, deps LoginDeps) Result {
	now := nowOr(deps.Now)
	log := logOr(deps.Log)

	if res, ok := checkRate(ctx, deps.Limiter, identity, rate.ClassLogin); !ok {
		return res
	}
	if deps.Validate != nil {
		if err := deps.Validate(email, password); err != nil {
			return failed(FailureValidation, err)
		}
	}

	acct, err := deps.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			deps.Hasher.VerifyDummy(ctx, password)
			return failed(FailureCredentials, ErrUnknownAccount)
		}
		return failed(FailureUnavailable, fmt.Errorf("lookup email: %w", err))
	}

	verdict, err := deps.Hasher.Verify(ctx, password, acct.PasswordHash)
	if err != nil {
		res := hashFailure(err)
		res.OwnerID = acct.ID
		return res
	}
	if !verdict.Match {
		res := failed(FailureCredentials, ErrBadPassword)
		res.OwnerID = acct.ID
		return res
	}
	if !acct.IsActive {
		res := failed(FailureInactive, ErrInactiveAccount)
		res.OwnerID = acct.ID
		return res
	}

	var rehashed bool
	if verdict.NeedsRehash && deps.UpgradeOnLogin {
		rehashed = upgradeHash(ctx, log, deps, acct, password)
	}

	if err := deps.Accounts.TouchLastLogin(ctx, acct.ID, now().UTC()); err != nil {
		return failed(FailureUnavailable, fmt.Errorf("touch last login: %w", err))
	}

	access, rt, err := issueSession(ctx, acct.ID, deps.Issue, deps.Refresh)
	if err != nil {
		return failed(FailureUnavailable, fmt.Errorf("issue session: %w", err))
	}

	return Result{Account: acct, OwnerID: acct.ID, AccessToken: access, Refresh: rt, Rehashed: rehashed}
}

// upgradeHash replaces a hash produced with outdated parameters. Failure is
// logged and ignored: the old hash stays valid and the next login retries.
func upgradeHash(ctx context.Context, log logging.Logger, deps LoginDeps, acct *accounts.Account, password string) bool {
	hash, err := deps.Hasher.Hash(ctx, password)
	if err != nil {
		log.Warn(ctx, "password rehash failed", "account_id", acct.ID, "err", err)
		return false
	}
	if err := deps.Accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		log.Warn(ctx, "password rehash not persisted", "account_id", acct.ID, "err", err)
		return false
	}
	acct.PasswordHash = hash
	return true
}
