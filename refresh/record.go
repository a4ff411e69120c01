package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/couponauth/internal"
)

// DefaultTTL is the lifetime of a refresh record from the moment it is created.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNotFound is returned when no record matches the presented token.
	ErrNotFound = errors.New("refresh token not found")
	// ErrRevoked is returned when the presented token was already rotated or
	// revoked. The owner's remaining records are revoked before it is returned.
	ErrRevoked = errors.New("refresh token revoked")
	// ErrExpired is returned once a record's expiry has passed.
	ErrExpired = errors.New("refresh token expired")
	// ErrUnavailable wraps backend failures. Callers must fail closed.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Record is the server-side state of one refresh token. The token itself is
// never persisted; ID is the SHA-256 of its decoded bytes.
type Record struct {
	ID         string
	OwnerID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
}

// Issued is returned to the caller on create and rotate. Token is only ever
// visible here.
type Issued struct {
	Token   string
	OwnerID string
	Record  Record
}

// ReplayError reports that a revoked token was presented again and how many
// live records of the owner were revoked as a consequence. Rotated is set when
// the token already had a successor, which is the signature of a stolen
// token; a token revoked by logout or a password change leaves it false.
type ReplayError struct {
	OwnerID string
	Revoked int
	Rotated bool
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("refresh token replay: revoked %d records", e.Revoked)
}

// Unwrap makes errors.Is(err, ErrRevoked) hold for replays.
func (e *ReplayError) Unwrap() error { return ErrRevoked }

// Store persists refresh records. Rotate must be an atomic compare-and-swap:
// of any number of concurrent calls with the same token at most one succeeds.
type Store interface {
	Create(ctx context.Context, ownerID string) (*Issued, error)
	Rotate(ctx context.Context, token string) (*Issued, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, ownerID string) (int, error)
	Ping(ctx context.Context) error
}

// newToken returns a fresh token and its record id.
func newToken() (string, string, error) {
	token, id, err := internal.NewRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	return token, id, nil
}

// recordID maps a presented token to its record id. Tokens that do not decode
// cannot match any record.
func recordID(token string) (string, error) {
	id, err := internal.RefreshKey(token)
	if err != nil {
		return "", ErrNotFound
	}
	return id, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
