package couponauth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrEthical07/couponauth/internal/flows"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	minUsernameLen = 3
	maxUsernameLen = 50
	maxFullNameLen = 200
	maxEmailLen    = 254

	passwordSpecials = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	commonPasswords = map[string]struct{}{
		"password": {},
		"123456":   {},
		"qwerty":   {},
		"admin":    {},
		"letmein":  {},
	}
)

// normalizeEmail trims and lowercases. Lookups and storage both use it.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(v *ValidationError, email string) {
	if email == "" {
		v.add("email", "is required")
		return
	}
	if len(email) > maxEmailLen {
		v.add("email", "too long")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		v.add("email", "invalid address")
	}
}

func validateUsername(v *ValidationError, username string) {
	n := len(username)
	switch {
	case n < minUsernameLen:
		v.add("username", "must be at least 3 characters")
	case n > maxUsernameLen:
		v.add("username", "must be at most 50 characters")
	case !usernamePattern.MatchString(username):
		v.add("username", "may contain only letters, digits, hyphens and underscores")
	}
}

func validateFullName(v *ValidationError, name string) {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		v.add("full_name", "is required")
	case utf8.RuneCountInString(name) > maxFullNameLen:
		v.add("full_name", "must be at most 200 characters")
	}
}

// validatePassword applies the password policy and reports every violated
// rule under field.
func validatePassword(v *ValidationError, field, pw string) {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordLen {
		v.add(field, "must be at least 8 characters")
	}
	if n > maxPasswordLen {
		v.add(field, "must be at most 128 characters")
	}

	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(passwordSpecials, r) {
			special = true
		}
	}
	if !lower {
		v.add(field, "must contain a lowercase letter")
	}
	if !upper {
		v.add(field, "must contain an uppercase letter")
	}
	if !digit {
		v.add(field, "must contain a digit")
	}
	if !special {
		v.add(field, "must contain a special character")
	}
	if _, ok := commonPasswords[strings.ToLower(pw)]; ok {
		v.add(field, "is too common")
	}
}

func validateRegistration(req RegisterRequest) (RegisterRequest, error) {
	out := RegisterRequest{
		Email:    normalizeEmail(req.Email),
		Password: req.Password,
		Username: strings.ToLower(strings.TrimSpace(req.Username)),
		FullName: strings.TrimSpace(req.FullName),
	}

	v := &ValidationError{}
	validateEmail(v, out.Email)
	validateUsername(v, out.Username)
	validateFullName(v, req.FullName)
	validatePassword(v, "password", out.Password)
	return out, v.orNil()
}

func validateRegisterInput(in flows.RegisterInput) (flows.RegisterInput, error) {
	out, err := validateRegistration(RegisterRequest(in))
	return flows.RegisterInput(out), err
}

func validatePasswordChange(current, next string) error {
	v := &ValidationError{}
	validatePassword(v, "new_password", next)
	if next == current {
		v.add("new_password", "must differ from the current password")
	}
	return v.orNil()
}

// validateLogin only rejects absent fields. Anything else is a credential
// check and must fail as ErrAuthentication.
func validateLogin(email, password string) error {
	v := &ValidationError{}
	if strings.TrimSpace(email) == "" {
		v.add("email", "is required")
	}
	if password == "" {
		v.add("password", "is required")
	}
	return v.orNil()
}

func validateRefreshToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return &ValidationError{Fields: []FieldError{{Field: "refresh_token", Reason: "is required"}}}
	}
	return nil
}
