package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/clinicauth"
)

// Require authenticates every request with Engine.AuthenticateRequest.
func Require(engine *clinicauth.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return deny
	}
	return guard(engine.AuthenticateRequest)
}

// RequireStepUpPending admits only step-up tokens, for the route that
// completes a TOTP challenge.
func RequireStepUpPending(engine *clinicauth.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return deny
	}
	return guard(engine.AuthenticateStepUp)
}

// RequireRole must run after Require. Requests without a principal get 401,
// principals outside roles get 403.
func RequireRole(roles ...clinicauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || p.Role == "" {
				WriteError(w, clinicauth.ErrUnauthorized)
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, clinicauth.ErrUnauthorized)
	})
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"Forbidden"}}` + "\n"))
}
