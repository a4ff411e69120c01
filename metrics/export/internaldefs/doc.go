// Package internaldefs holds the metric families, label values and latency
// bounds that both exporters render, so Prometheus and OTel output stay in
// step.
package internaldefs
