package couponauth

import (
	"errors"
	"time"

	"github.com/google/uuid"
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

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  accounts.Store
	refresh   refresh.Store
	auditSink AuditSink
	log       logging.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the default configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the rate limiter and, unless
// WithRefreshStore is given, by the refresh store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccounts sets the account store. It is required.
func (b *Builder) WithAccounts(store accounts.Store) *Builder {
	b.accounts = store
	return b
}

// WithRefreshStore replaces the default Redis refresh store, e.g. with
// refresh.PostgresStore.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refresh = store
	return b
}

// WithAuditSink sets where audit events go. Audit must also be enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. A nil logger discards output.
func (b *Builder) WithLogger(log logging.Logger) *Builder {
	b.log = log
	return b
}

// WithClock overrides time.Now for token issuance, refresh expiry and
// audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.log
	if log == nil {
		log = logging.Discard()
	}

	// -------- PASSWORD POOL --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	pool, err := password.NewPool(hasher, cfg.Password.Workers)
	if err != nil {
		return nil, err
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		Secret:    cfg.JWT.Secret,
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Leeway:    cfg.JWT.Leeway,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	refreshStore := b.refresh
	if refreshStore == nil {
		refreshStore = refresh.NewRedisStore(b.redis, refresh.RedisConfig{
			Prefix: cfg.Refresh.RedisPrefix,
			TTL:    cfg.Refresh.TTL,
			Now:    now,
		})
	}

	limiter := rate.New(b.redis, rate.Config{
		Prefix:   cfg.RateLimit.RedisPrefix,
		Policies: ratePolicies(cfg.RateLimit),
	})

	e := &Engine{
		config:   cfg,
		accounts: timeoutAccounts{next: b.accounts, timeout: cfg.Store.OperationTimeout},
		refresh:  timeoutRefresh{next: refreshStore, timeout: cfg.Store.OperationTimeout},
		limiter:  timeoutLimiter{next: limiter, timeout: cfg.Store.OperationTimeout},
		redis:    b.redis,
		hasher:   pool,
		codec:    codec,
		metrics:  NewMetrics(cfg.Metrics),
		log:      log,
		now:      now,
	}

	// -------- AUDIT --------
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   []string{auditEventRefreshReplayDetected, auditEventDependencyUnavailable},
	}, b.auditSink)

	e.flows = e.buildFlowDeps()

	b.built = true
	return e, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	issue := func(accountID string) (string, error) {
		return e.codec.Issue(accountID, 0)
	}

	return flows.Deps{
		Register: flows.RegisterDeps{
			Limiter:  e.limiter,
			Validate: validateRegisterInput,
			Accounts: e.accounts,
			Refresh:  e.refresh,
			Hasher:   e.hasher,
			Issue:    issue,
			NewID:    uuid.NewString,
			Now:      e.now,
		},
		Login: flows.LoginDeps{
			Limiter:        e.limiter,
			Validate:       validateLogin,
			Accounts:       e.accounts,
			Refresh:        e.refresh,
			Hasher:         e.hasher,
			Issue:          issue,
			UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
			Now:            e.now,
			Log:            e.log,
		},
		Refresh: flows.RefreshDeps{
			Limiter:  e.limiter,
			Validate: validateRefreshToken,
			Accounts: e.accounts,
			Refresh:  e.refresh,
			Issue:    issue,
			Log:      e.log,
		},
		Logout: flows.LogoutDeps{
			Refresh: e.refresh,
		},
		Identity: flows.IdentityDeps{
			Verify: func(token string) (string, error) {
				claims, err := e.codec.Verify(token)
				if err != nil {
					return "", err
				}
				return claims.Subject, nil
			},
			Accounts: e.accounts,
		},
		Password: flows.PasswordDeps{
			Limiter:      e.limiter,
			Accounts:     e.accounts,
			Refresh:      e.refresh,
			Hasher:       e.hasher,
			ValidateNext: validatePasswordChange,
		},
	}
}

func ratePolicies(cfg RateLimitConfig) map[rate.Class]rate.Policy {
	conv := func(p RatePolicy) rate.Policy {
		return rate.Policy{Limit: p.Limit, Window: p.Window}
	}
	return map[rate.Class]rate.Policy{
		rate.ClassLogin:          conv(cfg.Login),
		rate.ClassRegister:       conv(cfg.Register),
		rate.ClassRefresh:        conv(cfg.Refresh),
		rate.ClassPasswordChange: conv(cfg.PasswordChange),
		rate.ClassGeneral:        conv(cfg.General),
	}
}
