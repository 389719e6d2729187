package internaldefs

import (
	"testing"

	"github.com/MrEthical07/clinicauth"
	"github.com/stretchr/testify/assert"
)

func TestEveryCounterIsExported(t *testing.T) {
	seen := map[clinicauth.MetricID]bool{}
	names := map[string]bool{}
	for _, def := range CounterDefs {
		assert.False(t, seen[def.ID], "duplicate id %d", def.ID)
		assert.False(t, names[def.Name], "duplicate name %s", def.Name)
		seen[def.ID] = true
		names[def.Name] = true
	}
	for id := clinicauth.MetricLoginSuccess; id < clinicauth.MetricAuthenticateLatency; id++ {
		assert.True(t, seen[id], "metric %d has no exporter definition", id)
	}
}

func TestBucketHelpers(t *testing.T) {
	assert.Len(t, HistogramBoundSuffix, len(HistogramUpperBounds)+1)
	raw := NormalizeBuckets([]uint64{1, 2, 3})
	assert.Equal(t, [8]uint64{1, 2, 3}, raw)
	assert.Equal(t, [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}, CumulativeBuckets(raw))
}
