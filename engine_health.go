package clinicauth

import (
	"context"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RefreshStoreAvailable bool          `json:"refreshStoreAvailable"`
	RefreshStoreLatency   time.Duration `json:"refreshStoreLatency"`
	// KeySetFetches is zero until the bridge downloads the provider key set.
	KeySetFetches uint64 `json:"keySetFetches"`
	AuditDropped  uint64 `json:"auditDropped"`
}

// Health pings the refresh store when it is network backed. In-memory stores
// always report available.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.refresh == nil {
		return HealthStatus{}
	}

	latency, err := e.refresh.Ping(ctx)
	if err != nil {
		e.warn("refresh store ping failed", "error", err)
	}
	return HealthStatus{
		RefreshStoreAvailable: err == nil,
		RefreshStoreLatency:   latency,
		KeySetFetches:         e.KeySetFetches(),
		AuditDropped:          e.AuditDropped(),
	}
}
