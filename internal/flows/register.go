package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/refresh"
)

// RegisterInput is a validated, normalized registration request.
type RegisterInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Limiter  Limiter
	Validate func(RegisterInput) (RegisterInput, error)
	Accounts accounts.Store
	Refresh  refresh.Store
	Hasher   Hasher
	Issue    AccessIssuer
	NewID    func() string
	Now      func() time.Time
}

// RunRegister rate-limits, validates, checks email uniqueness, hashes on
// the pool, persists the account and opens its first session.
func RunRegister(ctx context.Context, identity string, in RegisterInput, deps RegisterDeps) Result {
	now := nowOr(deps.Now)

	if res, ok := checkRate(ctx, deps.Limiter, identity, rate.ClassRegister); !ok {
		return res
	}

	if deps.Validate != nil {
		normalized, err := deps.Validate(in)
		if err != nil {
			return failed(FailureValidation, err)
		}
		in = normalized
	}

	switch _, err := deps.Accounts.GetByEmail(ctx, in.Email); {
	case err == nil:
		return failed(FailureDuplicate, accounts.ErrDuplicateEmail)
	case !errors.Is(err, accounts.ErrNotFound):
		return failed(FailureUnavailable, fmt.Errorf("lookup email: %w", err))
	}

	hash, err := deps.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return failed(FailureUnavailable, fmt.Errorf("hash password: %w", err))
	}

	ts := now().UTC()
	acct := &accounts.Account{
		ID:           deps.NewID(),
		Email:        in.Email,
		Username:     in.Username,
		FullName:     in.FullName,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := deps.Accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, accounts.ErrDuplicate) {
			return failed(FailureDuplicate, err)
		}
		return failed(FailureUnavailable, fmt.Errorf("create account: %w", err))
	}

	access, rt, err := issueSession(ctx, acct.ID, deps.Issue, deps.Refresh)
	if err != nil {
		res := failed(FailureUnavailable, fmt.Errorf("issue session: %w", err))
		res.Account = acct
		return res
	}

	return Result{Account: acct, AccessToken: access, Refresh: rt}
}
