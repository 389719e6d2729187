package oidc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var allowedAlgorithms = map[string]struct{}{
	"RS256": {}, "RS384": {}, "RS512": {},
	"PS256": {}, "PS384": {}, "PS512": {},
	"ES256": {}, "ES384": {}, "ES512": {},
}

// AllowedAlgorithm reports whether alg may sign an external token.
func AllowedAlgorithm(alg string) bool {
	_, ok := allowedAlgorithms[alg]
	return ok
}

// Claims is the verified claim set of an external token.
type Claims map[string]any

// String returns claim name as a string, or "" when absent or not scalar.
func (c Claims) String(name string) string {
	switch v := c[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Subject returns the sub claim.
func (c Claims) Subject() string { return c.String("sub") }

// AMR returns the amr claim, which providers send as a string or an array.
func (c Claims) AMR() []string {
	switch v := c["amr"].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

// ACR returns the acr claim.
func (c Claims) ACR() string { return c.String("acr") }

// Verifier checks external tokens against a KeySet.
type Verifier struct {
	cfg  Config
	keys *KeySet
}

// NewVerifier returns a Verifier. Issuer and audience are mandatory.
func NewVerifier(cfg Config, keys *KeySet) (*Verifier, error) {
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("%w: issuer and audience required", ErrNotConfigured)
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: key set required", ErrNotConfigured)
	}
	return &Verifier{cfg: cfg.withDefaults(), keys: keys}, nil
}

// Verify validates token and returns its claims. The header must carry kid
// and an allow-listed alg; HMAC and "none" are never accepted. Key-set fetch
// failures surface as ErrKeyFetchFailed, everything else as ErrInvalidToken.
// Cancellation of ctx is returned unchanged.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	kid, _ := unverified.Header["kid"].(string)
	alg, _ := unverified.Header["alg"].(string)
	if kid == "" || !AllowedAlgorithm(alg) {
		return nil, ErrInvalidToken
	}

	jwk, err := v.keys.Key(ctx, kid)
	if err != nil {
		if IsCanceled(ctx, err) {
			return nil, err
		}
		if errors.Is(err, ErrKeyFetchFailed) || errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	if jwk.Algorithm != "" && jwk.Algorithm != alg {
		return nil, ErrInvalidToken
	}
	key := jwk.Key
	if !jwk.IsPublic() {
		key = jwk.Public().Key
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.ClockTolerance),
		jwt.WithTimeFunc(v.cfg.Now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return Claims(claims), nil
}
