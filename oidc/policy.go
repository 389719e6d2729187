package oidc

import (
	"context"
	"slices"
	"strings"
)

// Policy maps verified claims to a local principal and decides whether the
// provider's authentication was strong enough for that principal's role.
type Policy struct {
	EmailClaim  string
	StepUpRoles []string
	RequiredAMR []string
	AllowedACR  []string
}

// Email returns the lowercased email from the configured claim, falling back
// to "email".
func (p Policy) Email(claims Claims) (string, error) {
	raw := ""
	if p.EmailClaim != "" {
		raw = claims.String(p.EmailClaim)
	}
	if raw == "" {
		raw = claims.String(DefaultEmailClaim)
	}
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrClaimMissing
	}
	return email, nil
}

// ResolvePrincipal looks up the principal named by claims. lookup returns
// (nil, nil) when no principal has that email.
func ResolvePrincipal[P any](
	ctx context.Context,
	policy Policy,
	claims Claims,
	lookup func(ctx context.Context, email string) (*P, error),
) (*P, error) {
	email, err := policy.Email(claims)
	if err != nil {
		return nil, err
	}
	principal, err := lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, ErrPrincipalNotFound
	}
	return principal, nil
}

// RequiresStepUp reports whether role is subject to amr/acr checks.
func (p Policy) RequiresStepUp(role string) bool {
	return role != "" && slices.Contains(p.StepUpRoles, role)
}

// EnforceStepUp returns ErrStepUpRequired when role needs step-up and claims
// lack any required amr value or carry an acr outside the allow-list.
func (p Policy) EnforceStepUp(role string, claims Claims) error {
	if !p.RequiresStepUp(role) {
		return nil
	}

	if len(p.RequiredAMR) > 0 {
		amr := claims.AMR()
		for _, required := range p.RequiredAMR {
			if !slices.Contains(amr, required) {
				return ErrStepUpRequired
			}
		}
	}

	if len(p.AllowedACR) > 0 && !slices.Contains(p.AllowedACR, claims.ACR()) {
		return ErrStepUpRequired
	}
	return nil
}
