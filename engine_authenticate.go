package clinicauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth/internal/flows"
	"github.com/MrEthical07/clinicauth/oidc"
)

// AuthenticateRequest routes token by its unverified iss/aud: tokens naming
// the configured provider are verified against its key set, mapped to a
// local principal by email and held to the step-up policy of that
// principal's role; everything else is verified as a local access token.
// Local step-up tokens are refused with ErrUnauthorized. When the bridge is
// Required, local tokens are refused with ErrInvalidToken. If ctx ends while
// the provider's key set is fetched, ctx's error is returned as is and
// nothing is counted, logged or audited.
func (e *Engine) AuthenticateRequest(ctx context.Context, token string) (*PrincipalClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}

	start := time.Now()
	res := flows.RunAuthenticate(ctx, token, e.authDeps())
	if res.Failure == flows.AuthFailureCanceled {
		// the caller gave up; nothing was decided about the token
		return nil, res.Err
	}
	if e.metrics.LatencyEnabled() {
		e.metricObserve(MetricAuthenticateLatency, time.Since(start))
	}

	if res.Failure != flows.AuthFailureNone {
		err := authFailureError(res)
		if res.External {
			e.metricInc(MetricExternalTokenRejected)
			switch res.Failure {
			case flows.AuthFailureExternalStepUp:
				e.metricInc(MetricExternalStepUpRejected)
			case flows.AuthFailureExternalKeys:
				e.metricInc(MetricKeySetFetchFailure)
				e.warn("external key set unavailable", "error", res.Err)
			}
			e.emitAudit(ctx, auditEventExternalRejected, false, res.Subject, err, func() map[string]any {
				return map[string]any{"oidcSub": res.ExternalSubject}
			})
		} else {
			e.metricInc(MetricLocalTokenRejected)
		}
		return nil, err
	}

	out := &PrincipalClaims{
		Subject:    res.Subject,
		Email:      res.Email,
		Role:       Role(res.Role),
		MFAEnabled: res.MFAEnabled,
		Source:     SourceLocal,
	}
	if res.External {
		out.Source = SourceExternal
		out.ExternalSubject = res.ExternalSubject
		e.metricInc(MetricExternalTokenAccepted)
	} else {
		e.metricInc(MetricLocalTokenAccepted)
	}
	return out, nil
}

// AuthenticateStepUp verifies a step-up token and returns the principal it
// names. Ordinary access tokens are refused with ErrUnauthorized.
func (e *Engine) AuthenticateStepUp(ctx context.Context, token string) (*PrincipalClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !claims.StepUp {
		return nil, ErrUnauthorized
	}
	return &PrincipalClaims{
		Subject:    claims.Subject,
		Email:      claims.Email,
		Role:       Role(claims.Role),
		MFAEnabled: claims.MFAEnabled,
		Source:     SourceLocal,
	}, nil
}

func (e *Engine) authDeps() flows.AuthDeps {
	deps := flows.AuthDeps{
		Classify: func(token string) (oidc.Kind, error) {
			return oidc.Classify(token, e.oidcConfig)
		},
		ParseLocal: func(token string) (*flows.LocalClaims, error) {
			c, err := e.tokens.ParseAccess(token)
			if err != nil {
				return nil, err
			}
			return &flows.LocalClaims{
				Subject:    c.Subject,
				Email:      c.Email,
				Role:       c.Role,
				MFAEnabled: c.MFAEnabled,
				StepUp:     c.StepUp,
			}, nil
		},
		Policy: e.policy,
		FindByEmail: func(ctx context.Context, email string) (*flows.User, error) {
			p, err := e.store.FindByEmail(ctx, email)
			if err != nil || p == nil {
				return nil, err
			}
			return userFromPrincipal(p), nil
		},
	}
	if e.verifier != nil {
		deps.VerifyExternal = e.verifier.Verify
	}
	return deps
}

func authFailureError(res flows.AuthResult) error {
	switch res.Failure {
	case flows.AuthFailureExternalRequired:
		return fmt.Errorf("%w: external token required", ErrInvalidToken)
	case flows.AuthFailureStepUpPending:
		return ErrUnauthorized
	case flows.AuthFailureExternalKeys:
		return res.Err
	case flows.AuthFailureExternalClaim:
		return ErrExternalClaimMissing
	case flows.AuthFailureExternalPrincipal:
		return ErrExternalPrincipalNotFound
	case flows.AuthFailureExternalStepUp:
		return ErrStepUpRequired
	case flows.AuthFailureLookup:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		return ErrInvalidToken
	}
}
