// Package otel exports clinicauth Engine metrics through
// go.opentelemetry.io/otel/metric.
//
// Related Engine counters share one observable counter and are split by
// attributes: login attempts by outcome, bearer checks by issuer (local or
// oidc) and outcome, and so on. Authentication latency is a gauge per
// cumulative bucket keyed by le. Callers own the MeterProvider.
package otel
