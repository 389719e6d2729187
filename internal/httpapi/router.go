// Package httpapi exposes the Engine over JSON HTTP routes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/middleware"
	"github.com/gorilla/mux"
)

// Options configures NewRouter. Metrics, when set, is mounted at MetricsPath.
type Options struct {
	Metrics     http.Handler
	MetricsPath string
	// Protected handlers are mounted under /api and require an access token.
	// Each may carry its own role gate.
	Protected []Route
	// Limiters, when set, throttles the auth routes per client IP.
	Limiters *Limiters
	Logger   *slog.Logger
}

// Route is an extra authenticated endpoint.
type Route struct {
	Method  string
	Path    string
	Roles   []clinicauth.Role
	Handler http.Handler
}

// NewRouter wires the authentication routes onto a gorilla/mux router.
func NewRouter(engine *clinicauth.Engine, opts Options) *mux.Router {
	h := &handlers{engine: engine}
	authed := middleware.Require(engine)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limits := opts.Limiters
	if limits == nil {
		limits = &Limiters{}
	}
	loginLimit := throttle(limits.Login, logger)
	refreshLimit := throttle(limits.Refresh, logger)
	mfaLimit := throttle(limits.MFA, logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.Handle("/login", loginLimit(http.HandlerFunc(h.login))).Methods(http.MethodPost)
	a.Handle("/refresh", refreshLimit(http.HandlerFunc(h.refresh))).Methods(http.MethodPost)
	a.Handle("/logout", refreshLimit(http.HandlerFunc(h.logout))).Methods(http.MethodPost)
	a.Handle("/logout/all", refreshLimit(authed(http.HandlerFunc(h.logoutAll)))).Methods(http.MethodPost)
	a.Handle("/mfa/verify", mfaLimit(middleware.RequireStepUpPending(engine)(http.HandlerFunc(h.verifyStepUp)))).Methods(http.MethodPost)
	a.Handle("/mfa/enroll", mfaLimit(authed(http.HandlerFunc(h.enroll)))).Methods(http.MethodPost)
	a.Handle("/mfa/confirm", mfaLimit(authed(http.HandlerFunc(h.confirmEnrollment)))).Methods(http.MethodPost)
	a.Handle("/mfa/status", mfaLimit(authed(http.HandlerFunc(h.status)))).Methods(http.MethodGet)
	a.Handle("/mfa/disable", mfaLimit(authed(http.HandlerFunc(h.disable)))).Methods(http.MethodPost)
	a.Handle("/me", authed(http.HandlerFunc(h.me))).Methods(http.MethodGet)

	if len(opts.Protected) > 0 {
		api := r.PathPrefix("/api").Subrouter()
		api.Use(authed)
		for _, route := range opts.Protected {
			next := route.Handler
			if len(route.Roles) > 0 {
				next = middleware.RequireRole(route.Roles...)(next)
			}
			api.Handle(route.Path, next).Methods(route.Method)
		}
	}

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, opts.Metrics).Methods(http.MethodGet)
	}

	return r
}
