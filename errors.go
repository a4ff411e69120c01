package couponauth

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrValidation marks malformed input. The HTTP layer answers 422.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication covers every credential failure. Callers must not
	// reveal which check failed.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimited is returned when a class ceiling is reached.
	ErrRateLimited = errors.New("rate limited")
	// ErrConflict is returned when a unique account field is taken.
	ErrConflict = errors.New("conflict")
	// ErrDependencyUnavailable is returned when Redis or the database cannot
	// be reached in time. Operations fail closed.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FieldError names one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// RateLimitError carries the class that tripped and when to retry.
type RateLimitError struct {
	Class      RateClass
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Class, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// AuthError is the single failure returned for credential problems. Reason
// is kept for server-side logs and tests only.
type AuthError struct {
	Reason error
}

func (e *AuthError) Error() string { return ErrAuthentication.Error() }

func (e *AuthError) Is(target error) bool { return target == ErrAuthentication }

func (e *AuthError) Unwrap() error { return e.Reason }

func authFailure(reason error) error {
	return &AuthError{Reason: reason}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDependencyUnavailable, op, err)
}
