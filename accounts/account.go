// Package accounts persists household member accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("account already exists")
	// ErrDuplicateEmail and ErrDuplicateUsername name the colliding column.
	ErrDuplicateEmail    = fmt.Errorf("%w: email taken", ErrDuplicate)
	ErrDuplicateUsername = fmt.Errorf("%w: username taken", ErrDuplicate)
)

// Account is one household member.
type Account struct {
	ID           string
	Email        string
	Username     string
	FullName     string
	PasswordHash string
	IsActive     bool
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// Store is the persistence contract the Engine depends on. Email and
// Username are stored lowercased; lookups expect lowercased input.
type Store interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context) error
}
