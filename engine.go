package couponauth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/internal/audit"
	"github.com/MrEthical07/couponauth/internal/flows"
	"github.com/MrEthical07/couponauth/internal/logging"
	"github.com/MrEthical07/couponauth/internal/rate"
	"github.com/MrEthical07/couponauth/jwt"
	"github.com/MrEthical07/couponauth/password"
	"github.com/MrEthical07/couponauth/refresh"
)

// Engine is the authentication service. Build it with New; it is safe for
// concurrent use and holds no per-session state in memory.
type Engine struct {
	config   Config
	accounts accounts.Store
	refresh  refresh.Store
	limiter  timeoutLimiter
	redis    redis.UniversalClient
	hasher   *password.Pool
	codec    *jwt.Codec
	audit    *audit.Dispatcher
	metrics  *Metrics
	log      logging.Logger
	now      func() time.Time
	flows    flows.Deps
}

// Close flushes buffered audit events. It does not close the Redis client
// or account store; the caller owns those.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the counters and latency histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Ping checks Redis, the account store and the refresh store, each under
// the operation timeout.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}

	pctx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()
	if err := e.redis.Ping(pctx).Err(); err != nil {
		return unavailable("redis", err)
	}
	if err := e.accounts.Ping(ctx); err != nil {
		return unavailable("accounts", err)
	}
	if err := e.refresh.Ping(ctx); err != nil {
		return unavailable("refresh store", err)
	}
	return nil
}

// Allow consumes one unit of class for identity. A refused request returns
// both the decision and a *RateLimitError; a Redis failure returns
// ErrDependencyUnavailable and must be treated as refused.
func (e *Engine) Allow(ctx context.Context, identity string, class RateClass) (RateDecision, error) {
	if e == nil {
		return RateDecision{}, ErrEngineNotReady
	}

	d, err := e.limiter.CheckAndIncrement(ctx, identity, rateClass(class))
	if errors.Is(err, rate.ErrUnknownClass) {
		return RateDecision{}, err
	}
	if err != nil {
		e.dependencyFailure(ctx, "rate limiter", err)
		return RateDecision{}, unavailable("rate limiter", err)
	}

	decision := RateDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
		ResetAfter: d.ResetAfter,
	}
	if !d.Allowed {
		e.emitRateLimit(ctx, class, identity)
		return decision, &RateLimitError{Class: class, RetryAfter: d.RetryAfter}
	}
	return decision, nil
}

func (e *Engine) dependencyFailure(ctx context.Context, op string, err error) {
	e.metricInc(MetricDependencyFailure)
	e.log.Error(ctx, "dependency unavailable", "op", op, "err", err)
	e.emitAudit(ctx, auditEventDependencyUnavailable, false, "", ErrDependencyUnavailable, func() map[string]string {
		return map[string]string{"op": op}
	})
}

func isReplay(err error) bool {
	var replay *refresh.ReplayError
	return errors.As(err, &replay) && replay.Rotated
}

func isTokenFailure(err error) bool {
	return errors.Is(err, refresh.ErrNotFound) ||
		errors.Is(err, refresh.ErrExpired) ||
		errors.Is(err, refresh.ErrRevoked) ||
		errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenSignature) ||
		errors.Is(err, jwt.ErrTokenExpired)
}

// publicAccount strips the password hash before an account leaves the Engine.
func publicAccount(a *accounts.Account) *accounts.Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	return &out
}
