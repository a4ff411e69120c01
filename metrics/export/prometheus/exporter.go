package prometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() couponauth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders auth counters and the login latency histogram
// in the Prometheus text format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter reads from engine on every scrape.
func NewPrometheusExporter(engine *couponauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render. A scrape with metrics disabled gets 204.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body := p.Render()
		if body == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	})
}

// Render returns the exposition text. It is empty while metrics are
// disabled and no audit event was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var e exposition
	for _, f := range internaldefs.Families {
		e.header(f.Name, f.Help, "counter")
		for _, s := range f.Series {
			if f.Labeled() {
				e.sample(f.Name, f.Label, s.LabelValue, snap.Counters[s.ID])
			} else {
				e.sample(f.Name, "", "", snap.Counters[s.ID])
			}
		}
	}

	e.header(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	e.sample(internaldefs.AuditDroppedName, "", "", dropped)

	e.histogram(internaldefs.LoginLatencyName, internaldefs.LoginLatencyHelp,
		internaldefs.Cumulative(snap.Histograms[couponauth.MetricLoginLatency]))

	return e.buf.String()
}

type exposition struct {
	buf bytes.Buffer
}

func (e *exposition) header(name, help, kind string) {
	fmt.Fprintf(&e.buf, "# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

func (e *exposition) sample(name, label, value string, v uint64) {
	if label == "" {
		fmt.Fprintf(&e.buf, "%s %d\n", name, v)
		return
	}
	fmt.Fprintf(&e.buf, "%s{%s=%q} %d\n", name, label, value, v)
}

// histogram writes cumulative buckets. The engine keeps no sum of
// observations, so _sum is always 0.
func (e *exposition) histogram(name, help string, cumulative []uint64) {
	e.header(name, help, "histogram")
	for i, bound := range internaldefs.LatencyBounds {
		e.sample(name+"_bucket", "le", strconv.FormatFloat(bound, 'g', -1, 64), cumulative[i])
	}
	total := cumulative[len(cumulative)-1]
	e.sample(name+"_bucket", "le", "+Inf", total)
	e.sample(name+"_count", "", "", total)
	e.sample(name+"_sum", "", "", 0)
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
