package clinicauth

import (
	"log/slog"
	"time"

	"github.com/MrEthical07/clinicauth/envelope"
	"github.com/MrEthical07/clinicauth/internal/audit"
	"github.com/MrEthical07/clinicauth/internal/limiters"
	"github.com/MrEthical07/clinicauth/jwt"
	"github.com/MrEthical07/clinicauth/oidc"
	"github.com/MrEthical07/clinicauth/otp"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/refresh"
)

// Engine is the authentication and data protection core. Build one with New;
// it is safe for concurrent use and must be closed to flush audit events.
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	store     CredentialStore
	lockout   *limiters.Lockout
	passwords *password.Hasher
	tokens    *jwt.Manager
	refresh   *refresh.Manager
	totp      *otp.Manager

	oidcConfig oidc.Config
	policy     oidc.Policy
	keySet     *oidc.KeySet
	verifier   *oidc.Verifier

	fields *envelope.Encrypter

	audit   *audit.Dispatcher
	metrics *Metrics
}

// Close stops the audit dispatcher after delivering queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// KeySetFetches reports how many JWKS downloads the bridge has performed.
// It is zero when the bridge is disabled.
func (e *Engine) KeySetFetches() uint64 {
	if e == nil || e.keySet == nil {
		return 0
	}
	return e.keySet.Fetches()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) warn(msg string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}
