package couponauth

import (
	"context"
	"time"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/refresh"
)

// Every Redis and database call made through these wrappers carries its own
// deadline. The flows see an expired deadline as a dependency error.

type timeoutAccounts struct {
	next    accounts.Store
	timeout time.Duration
}

func (s timeoutAccounts) Create(ctx context.Context, a *accounts.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Create(ctx, a)
}

func (s timeoutAccounts) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.GetByID(ctx, id)
}

func (s timeoutAccounts) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.GetByEmail(ctx, email)
}

func (s timeoutAccounts) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.UpdatePasswordHash(ctx, id, hash)
}

func (s timeoutAccounts) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.TouchLastLogin(ctx, id, at)
}

func (s timeoutAccounts) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Ping(ctx)
}

type timeoutRefresh struct {
	next    refresh.Store
	timeout time.Duration
}

func (s timeoutRefresh) Create(ctx context.Context, ownerID string) (*refresh.Issued, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Create(ctx, ownerID)
}

func (s timeoutRefresh) Rotate(ctx context.Context, token string) (*refresh.Issued, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Rotate(ctx, token)
}

func (s timeoutRefresh) Revoke(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Revoke(ctx, token)
}

func (s timeoutRefresh) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.RevokeAll(ctx, ownerID)
}

func (s timeoutRefresh) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.next.Ping(ctx)
}

type timeoutLimiter struct {
	next    *rate.Limiter
	timeout time.Duration
}

func (l timeoutLimiter) CheckAndIncrement(ctx context.Context, identity string, class rate.Class) (rate.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.next.CheckAndIncrement(ctx, identity, class)
}
