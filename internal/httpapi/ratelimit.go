package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/clinicauth/internal/rate"
	"github.com/MrEthical07/clinicauth/middleware"
	"github.com/redis/go-redis/v9"
)

const defaultRateWindow = 15 * time.Minute

// Limiters throttles auth routes per client IP. A nil field leaves that
// route group unthrottled.
type Limiters struct {
	Login   rate.Limiter
	Refresh rate.Limiter
	MFA     rate.Limiter
}

// DefaultPolicies are the per-IP budgets for login, refresh/logout and MFA
// routes over a 15 minute window.
func DefaultPolicies() (login, refresh, mfa rate.Policy) {
	return rate.Policy{Bucket: "login", Limit: 20, Window: defaultRateWindow},
		rate.Policy{Bucket: "refresh", Limit: 30, Window: defaultRateWindow},
		rate.Policy{Bucket: "mfa", Limit: 30, Window: defaultRateWindow}
}

// NewMemoryLimiters builds process-local limiters with DefaultPolicies.
func NewMemoryLimiters() *Limiters {
	login, refresh, mfa := DefaultPolicies()
	return &Limiters{
		Login:   rate.NewMemoryLimiter(login, nil),
		Refresh: rate.NewMemoryLimiter(refresh, nil),
		MFA:     rate.NewMemoryLimiter(mfa, nil),
	}
}

// NewRedisLimiters builds limiters shared across instances through client.
func NewRedisLimiters(client redis.UniversalClient) *Limiters {
	login, refresh, mfa := DefaultPolicies()
	return &Limiters{
		Login:   rate.NewRedisLimiter(client, login, rate.DefaultPrefix),
		Refresh: rate.NewRedisLimiter(client, refresh, rate.DefaultPrefix),
		MFA:     rate.NewRedisLimiter(client, mfa, rate.DefaultPrefix),
	}
}

// throttle fails open when the limiter backend is down; the login lockout
// still protects credentials.
func throttle(l rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := l.Allow(r.Context(), middleware.ClientIP(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := int((retryAfter + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, map[string]map[string]string{
					"error": {"code": "RATE_LIMITED", "message": http.StatusText(http.StatusTooManyRequests)},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
