package security

import "time"

type PasswordReport struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	Workers        int
	UpgradeOnLogin bool
}

type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// Report is a point-in-time description of the Engine's security posture.
// It holds no secrets.
type Report struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	JWTLeeway          time.Duration
	SecretBytes        int
	Argon2             PasswordReport
	RateLimits         map[string]RatePolicy
	OperationTimeout   time.Duration
	RefreshRotation    bool
	ReplayRevokesAll   bool
	AuditEnabled       bool
	AuditDropsWhenFull bool
	MetricsEnabled     bool
	Warnings           []string
}

type ReportInput struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	JWTLeeway        time.Duration
	SecretBytes      int
	Password         PasswordReport
	RateLimits       map[string]RatePolicy
	OperationTimeout time.Duration
	AuditEnabled     bool
	AuditDropIfFull  bool
	MetricsEnabled   bool
}

// Argon2id floors below which a warning is raised.
const (
	recommendedMemoryKB = 19 * 1024
	recommendedTime     = 2
)

// BuildReport derives a Report from input and flags weak settings.
func BuildReport(input ReportInput) Report {
	limits := make(map[string]RatePolicy, len(input.RateLimits))
	for k, v := range input.RateLimits {
		limits[k] = v
	}

	r := Report{
		SigningAlgorithm:   "HS256",
		AccessTTL:          input.AccessTTL,
		RefreshTTL:         input.RefreshTTL,
		JWTLeeway:          input.JWTLeeway,
		SecretBytes:        input.SecretBytes,
		Argon2:             input.Password,
		RateLimits:         limits,
		OperationTimeout:   input.OperationTimeout,
		RefreshRotation:    true,
		ReplayRevokesAll:   true,
		AuditEnabled:       input.AuditEnabled,
		AuditDropsWhenFull: input.AuditEnabled && input.AuditDropIfFull,
		MetricsEnabled:     input.MetricsEnabled,
	}

	if input.Password.Memory < recommendedMemoryKB {
		r.Warnings = append(r.Warnings, "argon2 memory below 19 MiB")
	}
	if input.Password.Time < recommendedTime {
		r.Warnings = append(r.Warnings, "argon2 time cost below 2")
	}
	if input.AccessTTL > time.Hour {
		r.Warnings = append(r.Warnings, "access token lifetime above one hour")
	}
	if !input.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit disabled")
	}
	return r
}
