package couponauth

import (
	"time"

	"github.com/MrEthical07/couponauth/accounts"
)

// TokenPair is returned by Login, Register and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
}

// Session is the result of a successful registration.
type Session struct {
	TokenPair
	Account *accounts.Account
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Email    string
	Password string
	Username string
	FullName string
}

// RateClass names a rate-limited operation.
type RateClass string

const (
	RateClassLogin          RateClass = "login"
	RateClassRegister       RateClass = "register"
	RateClassRefresh        RateClass = "refresh"
	RateClassPasswordChange RateClass = "password_change"
	RateClassGeneral        RateClass = "general"
)

// RateDecision is the outcome of one Allow call.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}
