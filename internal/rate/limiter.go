package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class names a rate-limited operation.
type Class string

// Rate-limit classes. Each has its own policy and key space.
const (
	ClassLogin          Class = "login"           // password logins
	ClassRegister       Class = "register"        // account creation
	ClassRefresh        Class = "refresh"         // refresh token rotation
	ClassPasswordChange Class = "password_change" // authenticated password changes
	ClassGeneral        Class = "general"         // everything else behind the middleware
)

// Policy is the ceiling for one class.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicies returns the per-minute ceilings used in production.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassLogin:          {Limit: 10, Window: time.Minute},
		ClassRegister:       {Limit: 5, Window: time.Minute},
		ClassRefresh:        {Limit: 20, Window: time.Minute},
		ClassPasswordChange: {Limit: 3, Window: time.Minute},
		ClassGeneral:        {Limit: 60, Window: time.Minute},
	}
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix   string
	Policies map[Class]Policy
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

const allowScript = `
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local allowed = 1
if current >= limit then
  allowed = 0
else
  current = redis.call("INCR", KEYS[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], window)
  ttl = window
end
return {allowed, current, ttl}
`

var allowLua = redis.NewScript(allowScript)

// Limiter enforces per-class fixed-window ceilings using Redis counters.
type Limiter struct {
	redis    redis.UniversalClient
	prefix   string
	policies map[Class]Policy
}

// New creates a rate [Limiter] backed by the given Redis client. Classes
// missing from cfg.Policies fall back to DefaultPolicies.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	policies := DefaultPolicies()
	for class, p := range cfg.Policies {
		policies[class] = p
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "ca"
	}
	return &Limiter{
		redis:    redisClient,
		prefix:   prefix,
		policies: policies,
	}
}

// Policy returns the configured policy for class.
func (l *Limiter) Policy(class Class) (Policy, bool) {
	p, ok := l.policies[class]
	return p, ok
}

// CheckAndIncrement counts one request for identity under class, unless the
// class ceiling is already reached.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity string, class Class) (Decision, error) {
	policy, ok := l.policies[class]
	if !ok || policy.Limit <= 0 || policy.Window <= 0 {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	res, err := allowLua.Run(ctx, l.redis, []string{l.key(class, identity)}, policy.Limit, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected reply length %d", ErrRedisUnavailable, len(res))
	}

	reset := time.Duration(res[2]) * time.Millisecond
	d := Decision{
		Allowed:    res[0] == 1,
		Limit:      policy.Limit,
		Remaining:  policy.Limit - int(res[1]),
		ResetAfter: reset,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = reset
	}
	return d, nil
}

// Reset clears the counter for identity under class.
func (l *Limiter) Reset(ctx context.Context, identity string, class Class) error {
	if err := l.redis.Del(ctx, l.key(class, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(class Class, identity string) string {
	return l.prefix + ":rl:" + string(class) + ":" + identity
}
