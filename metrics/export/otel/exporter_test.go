package otel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/couponauth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot couponauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() couponauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := couponauth.MetricsSnapshot{
		Counters:   make(map[couponauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[couponauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes)] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes)] = dp.Value
				}
			}
		}
	}
	return out
}

// seriesKey spells a data point the way Prometheus would, e.g.
// name{outcome="success"}.
func seriesKey(name string, attrs attribute.Set) string {
	kvs := attrs.ToSlice()
	if len(kvs) == 0 {
		return name
	}
	parts := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		parts = append(parts, fmt.Sprintf("%s=%q", kv.Key, kv.Value.Emit()))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("couponauth-test")

	src := &fakeSource{
		snapshot: couponauth.MetricsSnapshot{
			Counters: map[couponauth.MetricID]uint64{
				couponauth.MetricLoginSuccess:          3,
				couponauth.MetricLoginRateLimited:      4,
				couponauth.MetricRefreshReplayDetected: 2,
				couponauth.MetricLogout:                5,
			},
			Histograms: map[couponauth.MetricID][]uint64{
				couponauth.MetricLoginLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	want := map[string]int64{
		`couponauth_login_attempts_total{outcome="success"}`:      3,
		`couponauth_login_attempts_total{outcome="rate_limited"}`: 4,
		`couponauth_login_attempts_total{outcome="rejected"}`:     0,
		`couponauth_logouts_total{scope="session"}`:               5,
		"couponauth_refresh_replays_total":                        2,
		"couponauth_audit_dropped_total":                          1,
		`couponauth_login_latency_seconds_bucket{le="0.01"}`:      1,
		`couponauth_login_latency_seconds_bucket{le="1"}`:         7,
		`couponauth_login_latency_seconds_bucket{le="+Inf"}`:      8,
		"couponauth_login_latency_seconds_count":                  8,
	}
	for name, v := range want {
		n, ok := got[name]
		if !ok {
			t.Fatalf("%s: no data point in %v", name, got)
		}
		if n != v {
			t.Fatalf("%s: expected %d, got %d", name, v, n)
		}
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("couponauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("couponauth-test")

	src := &fakeSource{
		snapshot: couponauth.MetricsSnapshot{
			Counters: map[couponauth.MetricID]uint64{
				couponauth.MetricLoginSuccess: 1,
			},
			Histograms: map[couponauth.MetricID][]uint64{
				couponauth.MetricLoginLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[couponauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
