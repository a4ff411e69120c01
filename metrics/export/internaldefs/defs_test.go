package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/couponauth"
)

func TestCumulative(t *testing.T) {
	got := Cumulative([]uint64{1, 2, 3})
	want := []uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFamiliesCoverEveryCounterOnce(t *testing.T) {
	names := make(map[string]bool)
	ids := make(map[couponauth.MetricID]bool)
	for _, f := range Families {
		if !strings.HasPrefix(f.Name, "couponauth_") || !strings.HasSuffix(f.Name, "_total") {
			t.Fatalf("unexpected family name %q", f.Name)
		}
		if names[f.Name] {
			t.Fatalf("duplicate family %q", f.Name)
		}
		names[f.Name] = true

		values := make(map[string]bool)
		for _, s := range f.Series {
			if ids[s.ID] {
				t.Fatalf("metric %d exported twice", s.ID)
			}
			ids[s.ID] = true
			if f.Labeled() == (s.LabelValue == "") {
				t.Fatalf("%s: label value %q does not match label %q", f.Name, s.LabelValue, f.Label)
			}
			if values[s.LabelValue] {
				t.Fatalf("%s: duplicate label value %q", f.Name, s.LabelValue)
			}
			values[s.LabelValue] = true
		}
	}

	for id := couponauth.MetricLoginSuccess; id <= couponauth.MetricDependencyFailure; id++ {
		if !ids[id] {
			t.Fatalf("counter %d is not exported", id)
		}
	}
}
