package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/clinicauth"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by a guard.
func PrincipalFromContext(ctx context.Context) (*clinicauth.PrincipalClaims, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*clinicauth.PrincipalClaims)
	return p, ok && p != nil
}

// WithPrincipal stores p in ctx. Guards call it; tests and custom adapters may too.
func WithPrincipal(ctx context.Context, p *clinicauth.PrincipalClaims) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

type authenticateFunc func(ctx context.Context, token string) (*clinicauth.PrincipalClaims, error)

func guard(authenticate authenticateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, clinicauth.ErrUnauthorized)
				return
			}

			ctx := RequestContext(r)
			p, err := authenticate(ctx, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// RequestContext carries the caller address and user agent into audit events.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := ClientIP(r); ip != "" {
		ctx = clinicauth.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = clinicauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

// ClientIP is the request's remote address without the port.
func ClientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError answers with the status and kind of err. Internal failures are
// reported without detail.
func WriteError(w http.ResponseWriter, err error) {
	status := clinicauth.StatusOf(err)
	body := errorBody{Error: errorDetail{
		Code:    string(clinicauth.KindOf(err)),
		Message: http.StatusText(status),
	}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
