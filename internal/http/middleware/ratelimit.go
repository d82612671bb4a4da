package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tendant/tenantctx/internal/config"
	"github.com/tendant/tenantctx/internal/httputil"
)

// RateLimitConfig holds per-IP throttling for one route group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging. It
// runs in front of the per-tenant limits and keeps unauthenticated floods
// away from the identity service.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("ip rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "Too many requests from this address")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters creates the per-IP limiters for the "tenant" and
// "assistant" route groups.
func CreateRateLimiters(cfg config.IPRateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			"tenant":    noOp,
			"assistant": noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		"tenant": RateLimit(RateLimitConfig{
			Requests: cfg.TenantRequests,
			Window:   cfg.TenantWindow,
			Logger:   logger,
		}),
		"assistant": RateLimit(RateLimitConfig{
			Requests: cfg.AssistantRequests,
			Window:   cfg.AssistantWindow,
			Logger:   logger,
		}),
	}
}
