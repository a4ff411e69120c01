package couponauth

import (
	"github.com/MrEthical07/couponauth/internal/security"
)

// SecurityReport describes the effective security settings of an Engine.
type SecurityReport = security.Report

// SecurityReport summarises the Engine configuration. It never includes the
// signing secret.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	workers := cfg.Password.Workers
	if e.hasher != nil {
		workers = e.hasher.Workers()
	}

	limits := make(map[string]security.RatePolicy)
	for class, p := range map[RateClass]RatePolicy{
		RateClassLogin:          cfg.RateLimit.Login,
		RateClassRegister:       cfg.RateLimit.Register,
		RateClassRefresh:        cfg.RateLimit.Refresh,
		RateClassPasswordChange: cfg.RateLimit.PasswordChange,
		RateClassGeneral:        cfg.RateLimit.General,
	} {
		limits[string(class)] = security.RatePolicy{Limit: p.Limit, Window: p.Window}
	}

	return security.BuildReport(security.ReportInput{
		AccessTTL:   cfg.JWT.AccessTTL,
		RefreshTTL:  cfg.Refresh.TTL,
		JWTLeeway:   cfg.JWT.Leeway,
		SecretBytes: len(cfg.JWT.Secret),
		Password: security.PasswordReport{
			Memory:         cfg.Password.Memory,
			Time:           cfg.Password.Time,
			Parallelism:    cfg.Password.Parallelism,
			SaltLength:     cfg.Password.SaltLength,
			KeyLength:      cfg.Password.KeyLength,
			Workers:        workers,
			UpgradeOnLogin: cfg.Password.UpgradeOnLogin,
		},
		RateLimits:       limits,
		OperationTimeout: cfg.Store.OperationTimeout,
		AuditEnabled:     cfg.Audit.Enabled,
		AuditDropIfFull:  cfg.Audit.DropIfFull,
		MetricsEnabled:   cfg.Metrics.Enabled,
	})
}
