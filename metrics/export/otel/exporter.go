package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on each collection. *clinicauth.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() clinicauth.MetricsSnapshot
	AuditDropped() uint64
	KeySetFetches() uint64
}

// Instrument names. Engine counters are folded into a handful of
// instruments and told apart by the outcome attribute.
const (
	LoginAttempts      = "clinicauth.login.attempts"
	StepUpEvents       = "clinicauth.mfa.events"
	RefreshRotations   = "clinicauth.refresh.rotations"
	SessionRevocations = "clinicauth.session.revocations"
	BearerChecks       = "clinicauth.bearer.checks"
	KeySetFetches      = "clinicauth.oidc.jwks.fetches"
	DecryptFallbacks   = "clinicauth.field.decrypt_fallbacks"
	AuditDropped       = "clinicauth.audit.dropped"
	AuthLatencyBuckets = "clinicauth.authenticate.latency.bucket"
	AuthLatencyCount   = "clinicauth.authenticate.latency.count"
)

const (
	outcomeKey = attribute.Key("outcome")
	issuerKey  = attribute.Key("issuer")
	leKey      = attribute.Key("le")
)

type series struct {
	id         clinicauth.MetricID
	instrument string
	attrs      attribute.Set
}

func outcome(v string) attribute.Set { return attribute.NewSet(outcomeKey.String(v)) }

func bearer(issuer, result string) attribute.Set {
	return attribute.NewSet(issuerKey.String(issuer), outcomeKey.String(result))
}

var seriesTable = []series{
	{clinicauth.MetricLoginSuccess, LoginAttempts, outcome("success")},
	{clinicauth.MetricLoginFailure, LoginAttempts, outcome("failure")},
	{clinicauth.MetricLoginLocked, LoginAttempts, outcome("locked")},
	{clinicauth.MetricLockoutEngaged, LoginAttempts, outcome("lockout_engaged")},
	{clinicauth.MetricStepUpRequired, StepUpEvents, outcome("required")},
	{clinicauth.MetricStepUpSuccess, StepUpEvents, outcome("verified")},
	{clinicauth.MetricStepUpFailure, StepUpEvents, outcome("rejected")},
	{clinicauth.MetricStepUpEnrolled, StepUpEvents, outcome("enrolled")},
	{clinicauth.MetricStepUpDisabled, StepUpEvents, outcome("disabled")},
	{clinicauth.MetricRefreshSuccess, RefreshRotations, outcome("success")},
	{clinicauth.MetricRefreshFailure, RefreshRotations, outcome("failure")},
	{clinicauth.MetricSessionRevoked, SessionRevocations, outcome("single")},
	{clinicauth.MetricSessionRevokeAll, SessionRevocations, outcome("all")},
	{clinicauth.MetricLocalTokenAccepted, BearerChecks, bearer("local", "accepted")},
	{clinicauth.MetricLocalTokenRejected, BearerChecks, bearer("local", "rejected")},
	{clinicauth.MetricExternalTokenAccepted, BearerChecks, bearer("oidc", "accepted")},
	{clinicauth.MetricExternalTokenRejected, BearerChecks, bearer("oidc", "rejected")},
	{clinicauth.MetricExternalStepUpRejected, BearerChecks, bearer("oidc", "mfa_rejected")},
	{clinicauth.MetricKeySetFetchFailure, KeySetFetches, outcome("failure")},
	{clinicauth.MetricDecryptFallback, DecryptFallbacks, *attribute.EmptySet()},
}

var descriptions = map[string]string{
	LoginAttempts:      "Password login attempts by outcome.",
	StepUpEvents:       "TOTP step-up lifecycle events by outcome.",
	RefreshRotations:   "Refresh token rotations by outcome.",
	SessionRevocations: "Refresh token revocations, single or all-for-principal.",
	BearerChecks:       "Bearer token checks by issuer and outcome.",
	KeySetFetches:      "Identity provider key set downloads by outcome.",
	DecryptFallbacks:   "Encrypted fields no configured key could open.",
}

// OTelExporter publishes Engine snapshots through observable instruments.
type OTelExporter struct {
	source       Source
	registration metric.Registration
	counters     map[string]metric.Int64ObservableCounter
	latency      metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableCounter
	bucketAttrs  []attribute.Set
}

// NewOTelExporter registers instruments on meter that read engine on every
// collection. Call Close to unregister.
func NewOTelExporter(meter metric.Meter, engine *clinicauth.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[string]metric.Int64ObservableCounter),
	}
	var observables []metric.Observable

	names := []string{AuditDropped}
	for _, s := range seriesTable {
		names = append(names, s.instrument)
	}
	for _, name := range names {
		if _, ok := e.counters[name]; ok {
			continue
		}
		desc := descriptions[name]
		if name == AuditDropped {
			desc = "Audit events discarded because the dispatcher buffer was full."
		}
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", name, err)
		}
		e.counters[name] = ins
		observables = append(observables, ins)
	}

	latency, err := meter.Int64ObservableGauge(AuthLatencyBuckets,
		metric.WithDescription("Cumulative bearer authentication latency samples at or below le seconds."))
	if err != nil {
		return nil, fmt.Errorf("create latency buckets: %w", err)
	}
	latencyCount, err := meter.Int64ObservableCounter(AuthLatencyCount,
		metric.WithDescription("Bearer authentication latency samples."))
	if err != nil {
		return nil, fmt.Errorf("create latency count: %w", err)
	}
	e.latency, e.latencyCount = latency, latencyCount
	observables = append(observables, latency, latencyCount)

	for _, suffix := range internaldefs.HistogramBoundSuffix {
		e.bucketAttrs = append(e.bucketAttrs, attribute.NewSet(leKey.String(suffix)))
	}

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range seriesTable {
		o.ObserveInt64(e.counters[s.instrument], int64(snapshot.Counters[s.id]), metric.WithAttributeSet(s.attrs))
	}
	// successful downloads come from the key set itself
	o.ObserveInt64(e.counters[KeySetFetches], int64(e.source.KeySetFetches()), metric.WithAttributeSet(outcome("success")))
	o.ObserveInt64(e.counters[AuditDropped], int64(e.source.AuditDropped()))

	buckets := internaldefs.CumulativeBuckets(
		internaldefs.NormalizeBuckets(snapshot.Histograms[clinicauth.MetricAuthenticateLatency]))
	for i, v := range buckets {
		o.ObserveInt64(e.latency, int64(v), metric.WithAttributeSet(e.bucketAttrs[i]))
	}
	o.ObserveInt64(e.latencyCount, int64(buckets[len(buckets)-1]))
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
