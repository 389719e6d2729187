package clinicauth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/clinicauth/oidc"
	"github.com/MrEthical07/clinicauth/refresh"
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout tracker holds the email.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidToken is returned for any bearer token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidRefreshToken is returned for absent, revoked, expired or raced refresh tokens.
	ErrInvalidRefreshToken = refresh.ErrInvalidRefreshToken
	// ErrStepUpRequired is returned when a second factor is missing.
	ErrStepUpRequired = errors.New("mfa required")
	// ErrInvalidStepUpCode is returned for a wrong one-time code.
	ErrInvalidStepUpCode = errors.New("invalid mfa code")
	// ErrStepUpNotConfigured is returned when the principal has no MFA secret.
	ErrStepUpNotConfigured = errors.New("mfa not configured")
	// ErrExternalClaimMissing is returned when an external token names no email.
	ErrExternalClaimMissing = oidc.ErrClaimMissing
	// ErrExternalPrincipalNotFound is returned when no principal matches an external token.
	ErrExternalPrincipalNotFound = oidc.ErrPrincipalNotFound
	// ErrExternalKeyFetchFailed is returned when the provider key set cannot be loaded.
	ErrExternalKeyFetchFailed = oidc.ErrKeyFetchFailed
	// ErrMisconfigured is returned when a required setting or collaborator is missing.
	ErrMisconfigured = errors.New("auth core misconfigured")
	// ErrUnauthorized is returned for missing bearer tokens and for step-up
	// tokens presented where a full access token is required.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPrincipalNotFound is returned by principal-scoped operations for unknown ids.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrStoreUnavailable wraps credential store failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Kind is the stable, transport-neutral name of an error class.
type Kind string

const (
	KindInvalidCredentials        Kind = "INVALID_CREDENTIALS"
	KindAccountLocked             Kind = "ACCOUNT_LOCKED"
	KindInvalidToken              Kind = "INVALID_TOKEN"
	KindInvalidRefreshToken       Kind = "INVALID_REFRESH_TOKEN"
	KindStepUpRequired            Kind = "MFA_REQUIRED"
	KindInvalidStepUpCode         Kind = "INVALID_MFA_CODE"
	KindStepUpNotConfigured       Kind = "MFA_NOT_CONFIGURED"
	KindExternalClaimMissing      Kind = "OIDC_CLAIM_MISSING"
	KindExternalPrincipalNotFound Kind = "OIDC_USER_NOT_FOUND"
	KindExternalKeyFetchFailed    Kind = "OIDC_JWKS_FETCH_FAILED"
	KindMisconfigured             Kind = "MISCONFIGURED"
	KindStoreUnavailable          Kind = "STORE_UNAVAILABLE"
	KindUnauthorized              Kind = "UNAUTHORIZED"
	KindInternal                  Kind = "INTERNAL"
)

var kindTable = []struct {
	err    error
	kind   Kind
	status int
}{
	{ErrInvalidCredentials, KindInvalidCredentials, http.StatusUnauthorized},
	{ErrAccountLocked, KindAccountLocked, http.StatusTooManyRequests},
	{ErrInvalidRefreshToken, KindInvalidRefreshToken, http.StatusUnauthorized},
	{ErrStepUpRequired, KindStepUpRequired, http.StatusUnauthorized},
	{ErrInvalidStepUpCode, KindInvalidStepUpCode, http.StatusBadRequest},
	{ErrStepUpNotConfigured, KindStepUpNotConfigured, http.StatusBadRequest},
	{ErrExternalClaimMissing, KindExternalClaimMissing, http.StatusUnauthorized},
	{ErrExternalPrincipalNotFound, KindExternalPrincipalNotFound, http.StatusUnauthorized},
	{ErrExternalKeyFetchFailed, KindExternalKeyFetchFailed, http.StatusServiceUnavailable},
	{ErrMisconfigured, KindMisconfigured, http.StatusServiceUnavailable},
	{ErrInvalidToken, KindInvalidToken, http.StatusUnauthorized},
	{ErrStoreUnavailable, KindStoreUnavailable, http.StatusServiceUnavailable},
	{refresh.ErrStoreUnavailable, KindStoreUnavailable, http.StatusServiceUnavailable},
	{ErrUnauthorized, KindUnauthorized, http.StatusUnauthorized},
	{ErrPrincipalNotFound, KindUnauthorized, http.StatusUnauthorized},
}

// KindOf classifies err. Unrecognised errors are KindInternal; nil is "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, row := range kindTable {
		if errors.Is(err, row.err) {
			return row.kind
		}
	}
	return KindInternal
}

// StatusOf maps err to the HTTP status a transport should answer with.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, row := range kindTable {
		if errors.Is(err, row.err) {
			return row.status
		}
	}
	return http.StatusInternalServerError
}
