package couponauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/flows"
	"github.com/MrEthical07/couponauth/internal/rate"
)

const tokenTypeBearer = "bearer"

// Register creates an account and opens its first session.
//
// Errors: *RateLimitError, *ValidationError, ErrConflict (email or username
// taken), ErrDependencyUnavailable.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	identity := rateIdentity(ctx, "")
	res := flows.RunRegister(ctx, identity, flows.RegisterInput(req), e.flows.Register)
	if !res.OK() {
		err := e.failure(ctx, "register", identity, res)
		switch res.Failure {
		case flows.FailureRateLimited:
			e.metricInc(MetricRegisterRateLimited)
		case flows.FailureDuplicate:
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", err, nil)
		default:
			var accountID string
			if res.Account != nil {
				accountID = res.Account.ID
			}
			e.emitAudit(ctx, auditEventRegisterFailure, false, accountID, err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, res.Account.ID, nil, nil)

	return &Session{
		TokenPair: e.tokenPair(res),
		Account:   publicAccount(res.Account),
	}, nil
}

// Login authenticates email and password. Every credential problem
// (unknown email, wrong password, inactive account) is the same
// ErrAuthentication.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	email = normalizeEmail(email)
	identity := rateIdentity(ctx, "email:"+email)
	res := flows.RunLogin(ctx, identity, email, password, e.flows.Login)
	e.metrics.Observe(MetricLoginLatency, time.Since(start))

	if !res.OK() {
		err := e.failure(ctx, "login", identity, res)
		switch res.Failure {
		case flows.FailureRateLimited:
			e.metricInc(MetricLoginRateLimited)
		case flows.FailureUnavailable, flows.FailureValidation:
		default:
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, res.OwnerID, res.Err, nil)
		}
		return nil, err
	}

	if res.Rehashed {
		e.metricInc(MetricPasswordRehashed)
		e.emitAudit(ctx, auditEventPasswordRehashed, true, res.OwnerID, nil, nil)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.OwnerID, nil, nil)

	pair := e.tokenPair(res)
	return &pair, nil
}

// Refresh rotates refreshToken and returns a new pair. The presented token
// is dead afterwards. Presenting an already rotated token revokes every
// session of its owner.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	identity := rateIdentity(ctx, "")
	res := flows.RunRefresh(ctx, identity, refreshToken, e.flows.Refresh)
	if !res.OK() {
		err := e.failure(ctx, "refresh", identity, res)
		switch res.Failure {
		case flows.FailureRateLimited:
			e.metricInc(MetricRefreshRateLimited)
		case flows.FailureUnavailable, flows.FailureValidation:
		case flows.FailureReplay:
			e.metricInc(MetricRefreshReplayDetected)
			e.metricInc(MetricRefreshFailure)
			e.log.Warn(ctx, "refresh token replay detected", "account_id", res.OwnerID, "revoked", res.Revoked)
			e.emitAudit(ctx, auditEventRefreshReplayDetected, false, res.OwnerID, res.Err, func() map[string]string {
				return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
			})
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, res.OwnerID, res.Err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.OwnerID, nil, nil)

	pair := e.tokenPair(res)
	return &pair, nil
}

// Logout revokes refreshToken. It succeeds for unknown, malformed and
// already revoked tokens and fails only when the store is unreachable.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, refreshToken, e.flows.Logout)
	if !res.OK() {
		return e.failure(ctx, "logout", "", res)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", nil, nil)
	return nil
}

// LogoutAll revokes every refresh token of accountID and returns how many
// were live.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	res := flows.RunLogoutAll(ctx, accountID, e.flows.Logout)
	if !res.OK() {
		return 0, e.failure(ctx, "logout all", "", res)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return res.Revoked, nil
}

// Identity verifies accessToken and returns its active owner. Expired,
// tampered and malformed tokens fail with the same ErrAuthentication.
func (e *Engine) Identity(ctx context.Context, accessToken string) (*accounts.Account, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunIdentity(ctx, accessToken, e.flows.Identity)
	if !res.OK() {
		return nil, e.failure(ctx, "identity", "", res)
	}
	return publicAccount(res.Account), nil
}

// ChangePassword replaces the password of accountID and revokes all of its
// refresh tokens. A wrong current password is a *ValidationError on
// current_password.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if current == "" {
		return &ValidationError{Fields: []FieldError{{Field: "current_password", Reason: "is required"}}}
	}

	res := flows.RunChangePassword(ctx, accountID, current, next, e.flows.Password)
	if !res.OK() {
		err := e.failure(ctx, "change password", accountID, res)
		switch res.Failure {
		case flows.FailureRateLimited, flows.FailureUnavailable:
		case flows.FailureValidation:
			if res.OwnerID != "" {
				e.metricInc(MetricPasswordChangeInvalidOld)
				e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, accountID, res.Err, nil)
			}
		default:
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, res.Err, nil)
		}
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return nil
}

func (e *Engine) tokenPair(res flows.Result) TokenPair {
	return TokenPair{
		AccessToken:  res.AccessToken,
		RefreshToken: res.Refresh.Token,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(e.codec.AccessTTL().Seconds()),
	}
}

// failure maps a flow failure to the public error taxonomy. Credential and
// token failures collapse into one *AuthError; the reason survives only in
// Unwrap for logs and audit codes.
func (e *Engine) failure(ctx context.Context, op, identity string, res flows.Result) error {
	switch res.Failure {
	case flows.FailureRateLimited:
		class := RateClass(res.Class)
		e.emitRateLimit(ctx, class, identity)
		return &RateLimitError{Class: class, RetryAfter: res.Decision.RetryAfter}
	case flows.FailureValidation:
		var ve *ValidationError
		if errors.As(res.Err, &ve) {
			return ve
		}
		if errors.Is(res.Err, flows.ErrBadPassword) {
			return &ValidationError{Fields: []FieldError{{Field: "current_password", Reason: "is incorrect"}}}
		}
		return &ValidationError{Fields: []FieldError{{Field: "request", Reason: res.Err.Error()}}}
	case flows.FailureDuplicate:
		return fmt.Errorf("%w: %w", ErrConflict, res.Err)
	case flows.FailureCredentials, flows.FailureInactive, flows.FailureToken, flows.FailureReplay:
		return authFailure(res.Err)
	case flows.FailureUnavailable:
		e.dependencyFailure(ctx, op, res.Err)
		return unavailable(op, res.Err)
	default:
		return fmt.Errorf("%s: unexpected failure %s: %v", op, res.Failure, res.Err)
	}
}

func rateClass(c RateClass) rate.Class {
	return rate.Class(c)
}
