package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/logging"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/password"
	"github.com/MrEthical07/couponauth/refresh"
)

// Deps groups flow dependency sets. The Engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Register RegisterDeps
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Identity IdentityDeps
	Password PasswordDeps
}

// FailureKind classifies flow failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureValidation
	FailureDuplicate
	FailureCredentials
	FailureInactive
	FailureToken
	FailureReplay
	FailureUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRateLimited:
		return "rate_limited"
	case FailureValidation:
		return "validation"
	case FailureDuplicate:
		return "duplicate"
	case FailureCredentials:
		return "credentials"
	case FailureInactive:
		return "inactive"
	case FailureToken:
		return "token"
	case FailureReplay:
		return "replay"
	case FailureUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Reasons carried in Result.Err for credential failures. They exist for
// server-side logs and must never reach a client.
var (
	ErrUnknownAccount  = errors.New("unknown account")
	ErrBadPassword     = errors.New("password mismatch")
	ErrInactiveAccount = errors.New("account inactive")
	ErrCorruptHash     = errors.New("stored hash unreadable")
)

// Result carries either the outcome of a flow or its classified failure.
type Result struct {
	Failure  FailureKind
	Err      error
	Class    rate.Class
	Decision rate.Decision

	Account     *accounts.Account
	OwnerID     string
	AccessToken string
	Refresh     *refresh.Issued
	Revoked     int
	Rehashed    bool
}

// OK reports whether the flow succeeded.
func (r Result) OK() bool { return r.Failure == FailureNone }

// Limiter is satisfied by *rate.Limiter.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, identity string, class rate.Class) (rate.Decision, error)
}

// Hasher is satisfied by *password.Pool.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encodedHash string) (password.Result, error)
	VerifyDummy(ctx context.Context, password string)
}

// AccessIssuer signs an access token for accountID.
type AccessIssuer func(accountID string) (string, error)

func failed(kind FailureKind, err error) Result {
	return Result{Failure: kind, Err: err}
}

// checkRate consumes one unit of class for identity. ok is false when the
// caller must stop; the returned Result then describes why.
func checkRate(ctx context.Context, lim Limiter, identity string, class rate.Class) (Result, bool) {
	if lim == nil {
		return Result{}, true
	}
	d, err := lim.CheckAndIncrement(ctx, identity, class)
	if err != nil {
		return Result{Failure: FailureUnavailable, Err: err, Class: class}, false
	}
	if !d.Allowed {
		return Result{Failure: FailureRateLimited, Class: class, Decision: d}, false
	}
	return Result{}, true
}

// issueSession signs an access token and creates the refresh record that
// backs it.
func issueSession(ctx context.Context, accountID string, issue AccessIssuer, store refresh.Store) (string, *refresh.Issued, error) {
	access, err := issue(accountID)
	if err != nil {
		return "", nil, err
	}
	rt, err := store.Create(ctx, accountID)
	if err != nil {
		return "", nil, err
	}
	return access, rt, nil
}

// hashFailure classifies a password pool error. Context errors mean the
// caller gave up or the pool was saturated past the deadline.
func hashFailure(err error) Result {
	if errors.Is(err, password.ErrInvalidHash) {
		return failed(FailureCredentials, errors.Join(ErrCorruptHash, err))
	}
	return failed(FailureUnavailable, err)
}

func nowOr(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

func logOr(log logging.Logger) logging.Logger {
	if log == nil {
		return logging.Discard()
	}
	return log
}
