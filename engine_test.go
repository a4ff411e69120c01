package couponauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/couponauth/accounts"
	"github.com/MrEthical07/couponauth/password"
)

const testPassword = "Coupon#Saver1"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Workers = 4
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	accounts *accounts.MemoryStore
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func newTestEnv(t *testing.T, cfg Config, configure func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := accounts.NewMemoryStore()
	b := New().WithConfig(cfg).WithRedis(rdb).WithAccounts(store)
	if configure != nil {
		configure(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, mr: mr, rdb: rdb, accounts: store}
}

func (env *testEnv) register(t *testing.T, email, username string) *Session {
	t.Helper()

	sess, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Username: username,
		FullName: "Household Member",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return sess
}

func TestRegisterLoginIdentityRoundTrip(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "  Ann@Example.COM ", "Ann_1")
	if sess.Account.Email != "ann@example.com" || sess.Account.Username != "ann_1" {
		t.Fatalf("expected normalized account, got %+v", sess.Account)
	}
	if sess.Account.PasswordHash != "" {
		t.Fatal("password hash must not leave the engine")
	}
	if sess.TokenType != "bearer" || sess.ExpiresIn != 1800 {
		t.Fatalf("unexpected token envelope %+v", sess.TokenPair)
	}

	me, err := env.engine.Identity(ctx, sess.AccessToken)
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if me.ID != sess.Account.ID {
		t.Fatalf("identity %s does not match registered account %s", me.ID, sess.Account.ID)
	}

	pair, err := env.engine.Login(ctx, "ANN@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	me, err = env.engine.Identity(ctx, pair.AccessToken)
	if err != nil || me.ID != sess.Account.ID {
		t.Fatalf("login identity mismatch: %v", err)
	}
	if me.LastLogin == nil {
		t.Fatal("expected last login to be set")
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRegisterSuccess] != 1 || snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	_, err := env.engine.Register(ctx, RegisterRequest{Email: "bad", Password: "short", Username: "x", FullName: ""})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"email", "password", "username", "full_name"} {
		if !fields[want] {
			t.Fatalf("expected %s to be rejected, got %+v", want, ve.Fields)
		}
	}

	env.register(t, "bob@example.com", "bob")
	_, err = env.engine.Register(ctx, RegisterRequest{Email: "BOB@example.com", Password: testPassword, Username: "bobby", FullName: "Bob"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	_, err = env.engine.Register(ctx, RegisterRequest{Email: "other@example.com", Password: testPassword, Username: "BOB", FullName: "Bob"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	env.register(t, "ann@example.com", "ann")
	off := env.register(t, "off@example.com", "off")
	if err := env.accounts.SetActive(off.Account.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	cases := []struct{ email, password string }{
		{"nobody@example.com", testPassword},
		{"ann@example.com", "Wrong#Pass1"},
		{"off@example.com", testPassword},
	}
	var messages []string
	for _, tc := range cases {
		_, err := env.engine.Login(ctx, tc.email, tc.password)
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("%s: expected ErrAuthentication, got %v", tc.email, err)
		}
		messages = append(messages, err.Error())
	}
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Fatalf("failure messages differ: %q vs %q", messages[0], m)
		}
	}

	if _, err := env.engine.Login(ctx, "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected empty fields to be a validation error, got %v", err)
	}
}

func TestLoginRateLimitedAfterCeiling(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := WithClientIP(context.Background(), "198.51.100.7")

	for i := 0; i < 10; i++ {
		_, err := env.engine.Login(ctx, "ghost@example.com", "Wrong#Pass1")
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("attempt %d: expected ErrAuthentication, got %v", i+1, err)
		}
	}

	_, err := env.engine.Login(ctx, "ghost@example.com", "Wrong#Pass1")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError on attempt 11, got %v", err)
	}
	if rl.Class != RateClassLogin || rl.RetryAfterSeconds() < 1 || rl.RetryAfter > time.Minute {
		t.Fatalf("unexpected rate limit error %+v", rl)
	}

	other := WithClientIP(context.Background(), "198.51.100.8")
	if _, err := env.engine.Login(other, "ghost@example.com", "Wrong#Pass1"); errors.Is(err, ErrRateLimited) {
		t.Fatal("another client must not share the window")
	}

	env.mr.FastForward(time.Minute)
	if _, err := env.engine.Login(ctx, "ghost@example.com", "Wrong#Pass1"); errors.Is(err, ErrRateLimited) {
		t.Fatal("expected a new window after expiry")
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected one rate-limited login, got %d", got)
	}
}

func TestEmptyLoginsSpendRateBudget(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := WithClientIP(context.Background(), "198.51.100.9")

	for i := 0; i < 10; i++ {
		if _, err := env.engine.Login(ctx, "ghost@example.com", ""); !errors.Is(err, ErrValidation) {
			t.Fatalf("attempt %d: expected ErrValidation, got %v", i+1, err)
		}
	}

	_, err := env.engine.Login(ctx, "ghost@example.com", "")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError on attempt 11, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != 0 {
		t.Fatalf("validation errors are not login failures, got %d", got)
	}
}

func TestRefreshRotationAndReplayRevokesSiblings(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	env.register(t, "ann@example.com", "ann")
	phone, err := env.engine.Login(ctx, "ann@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	laptop, err := env.engine.Login(ctx, "ann@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rotated, err := env.engine.Refresh(ctx, phone.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == phone.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, err := env.engine.Refresh(ctx, phone.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected replay to fail with ErrAuthentication, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, laptop.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected sibling session to be revoked, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected rotated successor to be revoked, got %v", err)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReplayDetected]; got < 1 {
		t.Fatalf("expected replay to be counted, got %d", got)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(ctx, sess.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrAuthentication) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestRefreshRejectsInactiveOwner(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")
	if err := env.accounts.SetActive(sess.Account.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected inactive owner to fail, got %v", err)
	}

	if err := env.accounts.SetActive(sess.Account.ID, true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatal("the original token was consumed and must stay dead")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")
	for i := 0; i < 2; i++ {
		if err := env.engine.Logout(ctx, sess.RefreshToken); err != nil {
			t.Fatalf("logout %d failed: %v", i+1, err)
		}
	}
	if err := env.engine.Logout(ctx, "not-a-token"); err != nil {
		t.Fatalf("garbage logout must succeed, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected logged-out token to be dead, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")
	second, err := env.engine.Login(ctx, "ann@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	n, err := env.engine.LogoutAll(ctx, sess.Account.ID)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked records, got %d", n)
	}
	for _, tok := range []string{sess.RefreshToken, second.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, tok); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("expected revoked token to fail, got %v", err)
		}
	}

	counters := env.engine.MetricsSnapshot().Counters
	if got := counters[MetricRefreshReplayDetected]; got != 0 {
		t.Fatalf("tokens revoked by logout are not replays, got %d", got)
	}
	if got := counters[MetricRefreshFailure]; got != 2 {
		t.Fatalf("expected 2 refresh failures, got %d", got)
	}
}

func TestIdentityRejectsBadTokensUniformly(t *testing.T) {
	clock := &testClock{now: time.Now()}
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithClock(clock.Now) })
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")

	parts := strings.Split(sess.AccessToken, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	var messages []string
	for _, tok := range []string{tampered, "garbage", ""} {
		_, err := env.engine.Identity(ctx, tok)
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication for %q, got %v", tok, err)
		}
		messages = append(messages, err.Error())
	}

	clock.Advance(31 * time.Minute)
	_, err := env.engine.Identity(ctx, sess.AccessToken)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
	messages = append(messages, err.Error())

	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Fatalf("identity failures differ: %q vs %q", messages[0], m)
		}
	}
}

func TestLoginUpgradesStaleHash(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	old, err := password.NewArgon2(password.Config{Memory: 16 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	stale, err := old.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := env.accounts.Create(ctx, &accounts.Account{
		ID: "acct-old", Email: "old@example.com", Username: "old", FullName: "Old", PasswordHash: stale, IsActive: true,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := env.engine.Login(ctx, "old@example.com", testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	stored, err := env.accounts.GetByID(ctx, "acct-old")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PasswordHash == stale {
		t.Fatal("expected hash to be replaced")
	}
	if needs, err := env.engine.hasher.Hasher().NeedsRehash(stored.PasswordHash); err != nil || needs {
		t.Fatalf("new hash should use current parameters: needs=%v err=%v", needs, err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordRehashed]; got != 1 {
		t.Fatalf("expected one rehash, got %d", got)
	}

	if _, err := env.engine.Login(ctx, "old@example.com", testPassword); err != nil {
		t.Fatalf("login with upgraded hash failed: %v", err)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")

	err := env.engine.ChangePassword(ctx, sess.Account.ID, "Wrong#Pass1", "Fresh#Pass22")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "current_password" {
		t.Fatalf("expected current_password validation error, got %v", err)
	}

	err = env.engine.ChangePassword(ctx, sess.Account.ID, testPassword, testPassword)
	if !errors.As(err, &ve) || ve.Fields[0].Field != "new_password" {
		t.Fatalf("expected new_password validation error, got %v", err)
	}

	if err := env.engine.ChangePassword(ctx, sess.Account.ID, testPassword, "Fresh#Pass22"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected existing sessions to be revoked, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "ann@example.com", testPassword); !errors.Is(err, ErrAuthentication) {
		t.Fatal("old password must stop working")
	}
	if _, err := env.engine.Login(ctx, "ann@example.com", "Fresh#Pass22"); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}
}

func TestFailClosedWhenRedisDown(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := context.Background()

	sess := env.register(t, "ann@example.com", "ann")
	env.mr.Close()

	if _, err := env.engine.Login(ctx, "ann@example.com", testPassword); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected login to fail closed, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected refresh to fail closed, got %v", err)
	}
	if err := env.engine.Logout(ctx, sess.RefreshToken); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected logout to report the outage, got %v", err)
	}
	if _, err := env.engine.Allow(ctx, "ip:1", RateClassGeneral); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected limiter to fail closed, got %v", err)
	}
	if err := env.engine.Ping(ctx); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ping to fail, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDependencyFailure]; got == 0 {
		t.Fatal("expected dependency failures to be counted")
	}
}

func TestAllowReportsDecision(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.General = RatePolicy{Limit: 2, Window: time.Minute}
	env := newTestEnv(t, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := env.engine.Allow(ctx, "ip:203.0.113.9", RateClassGeneral)
		if err != nil || !d.Allowed {
			t.Fatalf("call %d: expected allowed, got %+v %v", i+1, d, err)
		}
		if d.Remaining != 1-i {
			t.Fatalf("call %d: expected remaining %d, got %d", i+1, 1-i, d.Remaining)
		}
	}
	d, err := env.engine.Allow(ctx, "ip:203.0.113.9", RateClassGeneral)
	if !errors.Is(err, ErrRateLimited) || d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected refusal with retry-after, got %+v %v", d, err)
	}

	if _, err := env.engine.Allow(ctx, "x", RateClass("bogus")); err == nil || errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected unknown class error, got %v", err)
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).WithAccounts(accounts.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected missing redis to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing account store to fail")
	}
	if _, err := New().WithRedis(rdb).WithAccounts(accounts.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected missing JWT secret to fail validation")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithAccounts(accounts.NewMemoryStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "a@example.com", "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
}
