package security

import (
	"testing"
	"time"
)

func TestBuildReportWarnings(t *testing.T) {
	weak := BuildReport(ReportInput{
		AccessTTL: 2 * time.Hour,
		Password:  PasswordReport{Memory: 8 * 1024, Time: 1},
	})
	if len(weak.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %v", weak.Warnings)
	}

	strong := BuildReport(ReportInput{
		AccessTTL:    30 * time.Minute,
		Password:     PasswordReport{Memory: 64 * 1024, Time: 3},
		AuditEnabled: true,
	})
	if len(strong.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", strong.Warnings)
	}
	if strong.SigningAlgorithm != "HS256" || !strong.ReplayRevokesAll {
		t.Fatalf("unexpected report %+v", strong)
	}
}

func TestBuildReportCopiesRateLimits(t *testing.T) {
	in := map[string]RatePolicy{"login": {Limit: 10, Window: time.Minute}}
	r := BuildReport(ReportInput{RateLimits: in})
	in["login"] = RatePolicy{Limit: 1}

	if r.RateLimits["login"].Limit != 10 {
		t.Fatal("report must not alias the input map")
	}
}
