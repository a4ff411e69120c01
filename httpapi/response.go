package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/accounts"
)

const (
	codeValidation   = "VALIDATION_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
	codeRateLimited  = "RATE_LIMITED"
	codeConflict     = "CONFLICT"
	codeUnavailable  = "SERVICE_UNAVAILABLE"
	codeInternal     = "INTERNAL_ERROR"
	codeInvalidHost  = "INVALID_HOST"
)

type apiError struct {
	Status  string                  `json:"status"`
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Errors  []couponauth.FieldError `json:"errors,omitempty"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	Account      *accountView `json:"account,omitempty"`
}

type accountView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name"`
	IsActive  bool       `json:"is_active"`
	IsAdmin   bool       `json:"is_admin"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

func newAccountView(a *accounts.Account) *accountView {
	if a == nil {
		return nil
	}
	return &accountView{
		ID:        a.ID,
		Email:     a.Email,
		Username:  a.Username,
		FullName:  a.FullName,
		IsActive:  a.IsActive,
		IsAdmin:   a.IsAdmin,
		CreatedAt: a.CreatedAt,
		LastLogin: a.LastLogin,
	}
}

func newTokenResponse(p couponauth.TokenPair, a *accounts.Account) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		TokenType:    p.TokenType,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
		Account:      newAccountView(a),
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// mapError picks the status, code and client message for err. Credential
// failures share one message whatever the underlying reason.
func mapError(err error) (int, apiError) {
	out := apiError{Status: "error"}

	var ve *couponauth.ValidationError
	switch {
	case errors.As(err, &ve):
		out.Code, out.Message, out.Errors = codeValidation, "request validation failed", ve.Fields
		return http.StatusUnprocessableEntity, out
	case errors.Is(err, couponauth.ErrValidation):
		out.Code, out.Message = codeValidation, "request validation failed"
		return http.StatusUnprocessableEntity, out
	case errors.Is(err, couponauth.ErrAuthentication):
		out.Code, out.Message = codeUnauthorized, "could not validate credentials"
		return http.StatusUnauthorized, out
	case errors.Is(err, couponauth.ErrRateLimited):
		out.Code, out.Message = codeRateLimited, "too many requests"
		return http.StatusTooManyRequests, out
	case errors.Is(err, couponauth.ErrConflict):
		out.Code, out.Message = codeConflict, conflictMessage(err)
		return http.StatusConflict, out
	case errors.Is(err, couponauth.ErrDependencyUnavailable), errors.Is(err, couponauth.ErrEngineNotReady):
		out.Code, out.Message = codeUnavailable, "service temporarily unavailable"
		return http.StatusServiceUnavailable, out
	default:
		out.Code, out.Message = codeInternal, "internal server error"
		return http.StatusInternalServerError, out
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, accounts.ErrDuplicateEmail):
		return "email already registered"
	case errors.Is(err, accounts.ErrDuplicateUsername):
		return "username already taken"
	default:
		return "account already exists"
	}
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, body := mapError(err)

	var rl *couponauth.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
	}

	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", status,
		"error_code", body.Code,
		"request_id", couponauth.RequestIDFromContext(r.Context()),
		"error", err.Error(),
	}
	if status >= 500 {
		h.log.Error(r.Context(), "http operation failed", fields...)
	} else {
		h.log.Warn(r.Context(), "http operation failed", fields...)
	}

	writeJSON(w, status, body)
}

// writeBearerError is the Guard error writer for bearer routes.
func (h *Handler) writeBearerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, couponauth.ErrAuthentication) {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	h.writeMappedError(w, r, "bearer_auth", err)
}
