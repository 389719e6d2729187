package oidc

import (
	localjwt "github.com/MrEthical07/clinicauth/jwt"
)

// Kind is the verification route for a bearer token.
type Kind int

const (
	KindLocal Kind = iota
	KindExternal
)

func (k Kind) String() string {
	if k == KindExternal {
		return "external"
	}
	return "local"
}

// Classify decides, without verifying anything, whether token claims to come
// from the configured provider. A token is external only when the bridge is
// enabled and both iss and aud match. When cfg.Required is set, anything that
// is not external yields ErrExternalRequired.
func Classify(token string, cfg Config) (Kind, error) {
	kind := KindLocal
	if cfg.Enabled && cfg.Issuer != "" && cfg.Audience != "" && matchesProvider(token, cfg) {
		kind = KindExternal
	}
	if cfg.Required && kind != KindExternal {
		return kind, ErrExternalRequired
	}
	return kind, nil
}

func matchesProvider(token string, cfg Config) bool {
	_, claims, err := localjwt.DecodeUnverified(token)
	if err != nil {
		return false
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss != cfg.Issuer {
		return false
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, a := range aud {
		if a == cfg.Audience {
			return true
		}
	}
	return false
}
