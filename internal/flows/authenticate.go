package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/clinicauth/oidc"
)

// AuthFailureKind classifies bearer authentication failures.
type AuthFailureKind int

const (
	AuthFailureNone AuthFailureKind = iota
	AuthFailureExternalRequired
	AuthFailureLocalInvalid
	AuthFailureStepUpPending
	AuthFailureExternalInvalid
	AuthFailureExternalKeys
	AuthFailureExternalClaim
	AuthFailureExternalPrincipal
	AuthFailureExternalStepUp
	AuthFailureLookup
	// AuthFailureCanceled means the caller's context ended first. Err is the
	// context error.
	AuthFailureCanceled
)

// LocalClaims is the flow-local view of a verified local access token.
type LocalClaims struct {
	Subject    string
	Email      string
	Role       string
	MFAEnabled bool
	StepUp     bool
}

// AuthResult is a verified principal or failure metadata.
type AuthResult struct {
	Failure         AuthFailureKind
	Err             error
	External        bool
	Subject         string
	Email           string
	Role            string
	MFAEnabled      bool
	ExternalSubject string
}

// AuthDeps captures bearer authentication dependencies. External* funcs may
// be nil when the bridge is disabled.
type AuthDeps struct {
	Classify       func(token string) (oidc.Kind, error)
	ParseLocal     func(token string) (*LocalClaims, error)
	VerifyExternal func(ctx context.Context, token string) (oidc.Claims, error)
	Policy         oidc.Policy
	FindByEmail    func(ctx context.Context, email string) (*User, error)
}

// RunAuthenticate routes token to the local or external verifier. Local
// step-up tokens are refused here. External tokens are mapped to a local
// principal by email and must satisfy the step-up policy of its role.
func RunAuthenticate(ctx context.Context, token string, deps AuthDeps) AuthResult {
	kind, err := deps.Classify(token)
	if err != nil {
		return AuthResult{Failure: AuthFailureExternalRequired, Err: err}
	}

	if kind == oidc.KindLocal {
		claims, err := deps.ParseLocal(token)
		if err != nil {
			return AuthResult{Failure: AuthFailureLocalInvalid, Err: err}
		}
		if claims.StepUp {
			return AuthResult{Failure: AuthFailureStepUpPending, Subject: claims.Subject}
		}
		return AuthResult{
			Subject:    claims.Subject,
			Email:      claims.Email,
			Role:       claims.Role,
			MFAEnabled: claims.MFAEnabled,
		}
	}

	if deps.VerifyExternal == nil {
		return AuthResult{Failure: AuthFailureExternalInvalid, External: true, Err: oidc.ErrNotConfigured}
	}
	claims, err := deps.VerifyExternal(ctx, token)
	if err != nil {
		if oidc.IsCanceled(ctx, err) {
			return AuthResult{Failure: AuthFailureCanceled, External: true, Err: err}
		}
		if errors.Is(err, oidc.ErrKeyFetchFailed) {
			return AuthResult{Failure: AuthFailureExternalKeys, External: true, Err: err}
		}
		return AuthResult{Failure: AuthFailureExternalInvalid, External: true, Err: err}
	}

	user, err := oidc.ResolvePrincipal(ctx, deps.Policy, claims, deps.FindByEmail)
	if err != nil {
		res := AuthResult{External: true, Err: err, ExternalSubject: claims.Subject()}
		switch {
		case oidc.IsCanceled(ctx, err):
			res.Failure = AuthFailureCanceled
		case errors.Is(err, oidc.ErrClaimMissing):
			res.Failure = AuthFailureExternalClaim
		case errors.Is(err, oidc.ErrPrincipalNotFound):
			res.Failure = AuthFailureExternalPrincipal
		default:
			res.Failure = AuthFailureLookup
		}
		return res
	}

	res := AuthResult{
		External:        true,
		Subject:         user.ID,
		Email:           user.Email,
		Role:            user.Role,
		MFAEnabled:      user.MFAEnabled,
		ExternalSubject: claims.Subject(),
	}
	if err := deps.Policy.EnforceStepUp(user.Role, claims); err != nil {
		res.Failure = AuthFailureExternalStepUp
		res.Err = err
	}
	return res
}
