package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/couponauth/internal/logging"
)

func TestDevRuntimeServesAuthRoutes(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("", true)
	require.NoError(t, err)
	cfg.PasswordMemoryKB = 8 * 1024
	cfg.PasswordTime = 1

	rt, err := NewRuntime(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"email":"dev@example.com","password":"Coupon#Saver1","username":"dev","full_name":"Dev"}`
	resp, err = http.Post(srv.URL+"/auth/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunStopsOnCancel(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("", true)
	require.NoError(t, err)
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second

	rt, err := NewRuntime(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRuntimeFailsOnBadRedisURL(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("", true)
	require.NoError(t, err)
	cfg.RedisURL = "not a url"

	_, err = NewRuntime(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
}
