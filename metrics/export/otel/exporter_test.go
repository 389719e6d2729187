package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/clinicauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[clinicauth.MetricID]uint64
	latency  []uint64
	dropped  uint64
	fetches  uint64
}

func (f *fakeSource) MetricsSnapshot() clinicauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := clinicauth.MetricsSnapshot{
		Counters:   make(map[clinicauth.MetricID]uint64, len(f.counters)),
		Histograms: map[clinicauth.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[clinicauth.MetricAuthenticateLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) KeySetFetches() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fetches
}

func newExporter(t *testing.T, src Source) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := NewOTelExporterFromSource(provider.Meter("clinicauth-test"), src)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, exp.Close()) })
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

// point returns the value of the data point on name whose attributes match kv.
func point(t *testing.T, data map[string]metricdata.Aggregation, name string, kv ...attribute.KeyValue) int64 {
	t.Helper()
	want := attribute.NewSet(kv...)
	switch agg := data[name].(type) {
	case metricdata.Sum[int64]:
		for _, dp := range agg.DataPoints {
			if dp.Attributes.Equals(&want) {
				return dp.Value
			}
		}
	case metricdata.Gauge[int64]:
		for _, dp := range agg.DataPoints {
			if dp.Attributes.Equals(&want) {
				return dp.Value
			}
		}
	default:
		t.Fatalf("metric %s missing or of unexpected type %T", name, agg)
	}
	t.Fatalf("metric %s has no point with %v", name, kv)
	return 0
}

func TestExporterGroupsCountersByOutcome(t *testing.T) {
	reader := newExporter(t, &fakeSource{
		counters: map[clinicauth.MetricID]uint64{
			clinicauth.MetricLoginSuccess:           3,
			clinicauth.MetricLoginFailure:           2,
			clinicauth.MetricLoginLocked:            1,
			clinicauth.MetricExternalStepUpRejected: 4,
			clinicauth.MetricLocalTokenAccepted:     9,
			clinicauth.MetricDecryptFallback:        5,
		},
		dropped: 2,
		fetches: 7,
	})

	data := collect(t, reader)
	assert.Equal(t, int64(3), point(t, data, LoginAttempts, outcomeKey.String("success")))
	assert.Equal(t, int64(2), point(t, data, LoginAttempts, outcomeKey.String("failure")))
	assert.Equal(t, int64(1), point(t, data, LoginAttempts, outcomeKey.String("locked")))
	assert.Equal(t, int64(4), point(t, data, BearerChecks, issuerKey.String("oidc"), outcomeKey.String("mfa_rejected")))
	assert.Equal(t, int64(9), point(t, data, BearerChecks, issuerKey.String("local"), outcomeKey.String("accepted")))
	assert.Equal(t, int64(7), point(t, data, KeySetFetches, outcomeKey.String("success")))
	assert.Equal(t, int64(0), point(t, data, KeySetFetches, outcomeKey.String("failure")))
	assert.Equal(t, int64(5), point(t, data, DecryptFallbacks))
	assert.Equal(t, int64(2), point(t, data, AuditDropped))
}

func TestExporterLatencyBucketsAreCumulative(t *testing.T) {
	reader := newExporter(t, &fakeSource{latency: []uint64{2, 1, 0, 0, 0, 0, 0, 3}})

	data := collect(t, reader)
	assert.Equal(t, int64(2), point(t, data, AuthLatencyBuckets, leKey.String("0_005")))
	assert.Equal(t, int64(3), point(t, data, AuthLatencyBuckets, leKey.String("0_01")))
	assert.Equal(t, int64(3), point(t, data, AuthLatencyBuckets, leKey.String("0_5")))
	assert.Equal(t, int64(6), point(t, data, AuthLatencyBuckets, leKey.String("inf")))
	assert.Equal(t, int64(6), point(t, data, AuthLatencyCount))
}

func TestExporterRejectsNilInputs(t *testing.T) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))

	_, err := NewOTelExporterFromSource(provider.Meter("clinicauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewOTelExporterFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = NewOTelExporter(provider.Meter("clinicauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollect(t *testing.T) {
	src := &fakeSource{counters: map[clinicauth.MetricID]uint64{clinicauth.MetricRefreshSuccess: 1}}
	reader := newExporter(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[clinicauth.MetricRefreshSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestEngineSatisfiesSource(t *testing.T) {
	var _ Source = (*clinicauth.Engine)(nil)
}
