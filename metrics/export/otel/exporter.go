package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/couponauth"
	"github.com/MrEthical07/couponauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Constructor errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() couponauth.MetricsSnapshot
	AuditDropped() uint64
}

// family binds one counter instrument to its series and their attribute
// sets, which are built once at registration.
type family struct {
	counter metric.Int64ObservableCounter
	series  []internaldefs.Series
	attrs   []metric.ObserveOption
}

// OTelExporter publishes Engine metrics as observable instruments read on
// each collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []family
	auditDropped metric.Int64ObservableCounter
	latency      metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableGauge
	leAttrs      []metric.ObserveOption
}

// NewOTelExporter registers instruments on meter for engine.
func NewOTelExporter(meter metric.Meter, engine *couponauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments for any snapshot source.
// Each counter family becomes one instrument. Labeled families report one
// data point per outcome. Latency buckets are one gauge with an le
// attribute.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		counter, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		f := family{counter: counter, series: def.Series}
		for _, s := range def.Series {
			var attrs []attribute.KeyValue
			if def.Labeled() {
				attrs = append(attrs, attribute.String(def.Label, s.LabelValue))
			}
			f.attrs = append(f.attrs, metric.WithAttributes(attrs...))
		}
		e.families = append(e.families, f)
		observables = append(observables, counter)
	}

	var err error
	if e.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp)); err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	if e.latency, err = meter.Int64ObservableGauge(internaldefs.LoginLatencyName+"_bucket",
		metric.WithDescription(internaldefs.LoginLatencyHelp+" Cumulative count per upper bound.")); err != nil {
		return nil, fmt.Errorf("latency buckets: %w", err)
	}
	if e.latencyCount, err = meter.Int64ObservableGauge(internaldefs.LoginLatencyName+"_count",
		metric.WithDescription("Logins observed by the latency histogram.")); err != nil {
		return nil, fmt.Errorf("latency count: %w", err)
	}
	observables = append(observables, e.auditDropped, e.latency, e.latencyCount)

	for _, bound := range internaldefs.LatencyBounds {
		e.leAttrs = append(e.leAttrs, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(bound, 'g', -1, 64))))
	}
	e.leAttrs = append(e.leAttrs, metric.WithAttributes(attribute.String("le", "+Inf")))

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for i, s := range f.series {
			o.ObserveInt64(f.counter, int64(snap.Counters[s.ID]), f.attrs[i])
		}
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	cumulative := internaldefs.Cumulative(snap.Histograms[couponauth.MetricLoginLatency])
	for i, v := range cumulative {
		o.ObserveInt64(e.latency, int64(v), e.leAttrs[i])
	}
	o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
