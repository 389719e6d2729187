// Package prometheus exposes clinicauth Engine metrics through
// github.com/prometheus/client_golang.
//
// [Exporter] is a prometheus.Collector: register it with any registry, or
// mount [Exporter.Handler], which serves a private registry holding only the
// exporter. Counters are named clinicauth_*_total; the single histogram is
// clinicauth_authenticate_latency_seconds. Nothing is registered globally.
package prometheus
