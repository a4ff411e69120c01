package couponauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/couponauth/internal/flows"
)

const (
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterFailure       = "register_failure"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReplayDetected = "refresh_replay_detected"
	auditEventLogout                = "logout"
	auditEventLogoutAll             = "logout_all"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeInvalid = "password_change_invalid_old"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordRehashed      = "password_rehashed"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventDependencyUnavailable = "dependency_unavailable"
)

// AuditErrorCode is the stable, non-sensitive failure code written to
// AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUnknownAccount     AuditErrorCode = "unknown_account"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrCorruptHash        AuditErrorCode = "corrupt_hash"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReplay      AuditErrorCode = "refresh_replay"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        ClientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, class RateClass, identity string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"class":    string(class),
			"identity": identity,
		}
	})
}

// auditErrorCode reduces an error to a code. The most specific reason wins,
// so it checks flow reasons before the public sentinels they are wrapped in.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, flows.ErrUnknownAccount):
		return auditErrUnknownAccount
	case errors.Is(err, flows.ErrBadPassword):
		return auditErrInvalidCredentials
	case errors.Is(err, flows.ErrInactiveAccount):
		return auditErrAccountInactive
	case errors.Is(err, flows.ErrCorruptHash):
		return auditErrCorruptHash
	case isReplay(err):
		return auditErrRefreshReplay
	case isTokenFailure(err):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrDependencyUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrAuthentication):
		return auditErrInvalidCredentials
	default:
		return auditErrInternal
	}
}
