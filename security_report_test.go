package couponauth

import (
	"strings"
	"testing"
	"time"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "HS256" {
		t.Fatalf("unexpected algorithm %q", r.SigningAlgorithm)
	}
	if r.AccessTTL != 30*time.Minute || r.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttls %s / %s", r.AccessTTL, r.RefreshTTL)
	}
	if r.SecretBytes != 32 {
		t.Fatalf("expected 32 secret bytes, got %d", r.SecretBytes)
	}
	if r.Argon2.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", r.Argon2.Workers)
	}
	if got := r.RateLimits["login"]; got.Limit != 10 || got.Window != time.Minute {
		t.Fatalf("unexpected login policy %+v", got)
	}
	if got := r.RateLimits["register"]; got.Limit != 5 {
		t.Fatalf("unexpected register policy %+v", got)
	}
	if got := r.RateLimits["general"]; got.Limit != 60 {
		t.Fatalf("unexpected general policy %+v", got)
	}

	// testConfig lowers Argon2 cost and disables audit.
	joined := strings.Join(r.Warnings, "\n")
	for _, want := range []string{"memory", "time", "audit"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected a %s warning in %v", want, r.Warnings)
		}
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if r := e.SecurityReport(); r.SigningAlgorithm != "" {
		t.Fatalf("expected empty report, got %+v", r)
	}
}
