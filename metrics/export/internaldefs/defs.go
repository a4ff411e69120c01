package internaldefs

import (
	"github.com/MrEthical07/couponauth"
)

// Series is one engine counter inside a Family. LabelValue is empty for
// unlabeled families.
type Series struct {
	ID         couponauth.MetricID
	LabelValue string
}

// Family is one exported counter name. Engine counters that only differ by
// outcome share a family and are told apart by Label.
type Family struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// Labeled reports whether samples of f carry a label.
func (f Family) Labeled() bool { return f.Label != "" }

// Families lists every exported counter family in render order.
var Families = []Family{
	{
		Name: "couponauth_login_attempts_total", Help: "Password logins by outcome.", Label: "outcome",
		Series: []Series{
			{couponauth.MetricLoginSuccess, "success"},
			{couponauth.MetricLoginFailure, "rejected"},
			{couponauth.MetricLoginRateLimited, "rate_limited"},
		},
	},
	{
		Name: "couponauth_registrations_total", Help: "Household member sign-ups by outcome.", Label: "outcome",
		Series: []Series{
			{couponauth.MetricRegisterSuccess, "created"},
			{couponauth.MetricRegisterDuplicate, "duplicate"},
			{couponauth.MetricRegisterRateLimited, "rate_limited"},
		},
	},
	{
		Name: "couponauth_refresh_rotations_total", Help: "Refresh token rotations by outcome.", Label: "outcome",
		Series: []Series{
			{couponauth.MetricRefreshSuccess, "rotated"},
			{couponauth.MetricRefreshFailure, "rejected"},
			{couponauth.MetricRefreshRateLimited, "rate_limited"},
		},
	},
	{
		Name: "couponauth_refresh_replays_total", Help: "Already rotated refresh tokens presented again. Each one revokes every session of the owner.",
		Series: []Series{{couponauth.MetricRefreshReplayDetected, ""}},
	},
	{
		Name: "couponauth_logouts_total", Help: "Session revocations by scope.", Label: "scope",
		Series: []Series{
			{couponauth.MetricLogout, "session"},
			{couponauth.MetricLogoutAll, "all"},
		},
	},
	{
		Name: "couponauth_password_changes_total", Help: "Password changes by outcome.", Label: "outcome",
		Series: []Series{
			{couponauth.MetricPasswordChangeSuccess, "changed"},
			{couponauth.MetricPasswordChangeInvalidOld, "wrong_current"},
		},
	},
	{
		Name: "couponauth_password_rehashes_total", Help: "Stored Argon2id hashes upgraded during login.",
		Series: []Series{{couponauth.MetricPasswordRehashed, ""}},
	},
	{
		Name: "couponauth_rate_limit_denials_total", Help: "Requests denied by any rate-limit class.",
		Series: []Series{{couponauth.MetricRateLimitHit, ""}},
	},
	{
		Name: "couponauth_dependency_failures_total", Help: "Redis or Postgres calls that failed or timed out.",
		Series: []Series{{couponauth.MetricDependencyFailure, ""}},
	},
}

// Audit drops come from the dispatcher, not the engine counters.
const (
	AuditDroppedName = "couponauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// Login latency histogram.
const (
	LoginLatencyName = "couponauth_login_latency_seconds"
	LoginLatencyHelp = "Wall time of Engine.Login, including the Argon2id verification."
)

// LatencyBounds are the finite upper bounds, in seconds, of the engine's
// latency buckets. The engine keeps one extra overflow bucket.
var LatencyBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Cumulative turns the engine's per-bucket counts into running totals, one
// per LatencyBounds entry plus +Inf. Missing buckets count as zero.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(LatencyBounds)+1)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
