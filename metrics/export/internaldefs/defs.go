package internaldefs

import (
	"github.com/MrEthical07/clinicauth"
)

// CounterDef binds an Engine counter to its exported name.
type CounterDef struct {
	ID   clinicauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an Engine histogram to its exported name.
type HistogramDef struct {
	ID   clinicauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events the audit buffer discarded.
const AuditDroppedName = "clinicauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: clinicauth.MetricLoginSuccess, Name: "clinicauth_login_success_total", Help: "Successful password logins."},
	{ID: clinicauth.MetricLoginFailure, Name: "clinicauth_login_failure_total", Help: "Failed password logins."},
	{ID: clinicauth.MetricLoginLocked, Name: "clinicauth_login_locked_total", Help: "Login attempts refused while the email was locked."},
	{ID: clinicauth.MetricLockoutEngaged, Name: "clinicauth_lockout_engaged_total", Help: "Failures that placed an email into lockout."},
	{ID: clinicauth.MetricStepUpRequired, Name: "clinicauth_mfa_required_total", Help: "Logins that issued a step-up challenge."},
	{ID: clinicauth.MetricStepUpSuccess, Name: "clinicauth_mfa_success_total", Help: "Successful TOTP verifications."},
	{ID: clinicauth.MetricStepUpFailure, Name: "clinicauth_mfa_failure_total", Help: "Failed TOTP verifications."},
	{ID: clinicauth.MetricStepUpEnrolled, Name: "clinicauth_mfa_enrolled_total", Help: "TOTP enrollments."},
	{ID: clinicauth.MetricStepUpDisabled, Name: "clinicauth_mfa_disabled_total", Help: "TOTP disable operations."},
	{ID: clinicauth.MetricRefreshSuccess, Name: "clinicauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: clinicauth.MetricRefreshFailure, Name: "clinicauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: clinicauth.MetricSessionRevoked, Name: "clinicauth_session_revoked_total", Help: "Refresh tokens revoked one at a time."},
	{ID: clinicauth.MetricSessionRevokeAll, Name: "clinicauth_session_revoke_all_total", Help: "Revoke-all operations."},
	{ID: clinicauth.MetricLocalTokenAccepted, Name: "clinicauth_local_token_accepted_total", Help: "Accepted local access tokens."},
	{ID: clinicauth.MetricLocalTokenRejected, Name: "clinicauth_local_token_rejected_total", Help: "Rejected local bearer tokens."},
	{ID: clinicauth.MetricExternalTokenAccepted, Name: "clinicauth_oidc_token_accepted_total", Help: "Accepted identity provider tokens."},
	{ID: clinicauth.MetricExternalTokenRejected, Name: "clinicauth_oidc_token_rejected_total", Help: "Rejected identity provider tokens."},
	{ID: clinicauth.MetricExternalStepUpRejected, Name: "clinicauth_oidc_mfa_rejected_total", Help: "Provider tokens refused for missing amr/acr assurance."},
	{ID: clinicauth.MetricKeySetFetchFailure, Name: "clinicauth_oidc_jwks_fetch_failure_total", Help: "Failed provider key set downloads."},
	{ID: clinicauth.MetricDecryptFallback, Name: "clinicauth_decrypt_fallback_total", Help: "Encrypted fields no configured key could open."},
}

var HistogramDefs = []HistogramDef{
	{ID: clinicauth.MetricAuthenticateLatency, Name: "clinicauth_authenticate_latency_seconds", Help: "Bearer authentication latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The Engine
// keeps one more bucket for everything above the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// model buckets as separate gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
