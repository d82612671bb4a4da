package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tendant/tenantctx/internal/config"
	"github.com/tendant/tenantctx/internal/http/features/assistant"
	"github.com/tendant/tenantctx/internal/http/features/tenantcontext"
	"github.com/tendant/tenantctx/internal/http/middleware"
	"github.com/tendant/tenantctx/internal/httputil"
	"github.com/tendant/tenantctx/pkg/tenant"
)

// AssistantEndpoint is the rate-limit scope of the chat proxy.
const AssistantEndpoint = "assistant-chat"

// healthTimeout bounds each dependency probe.
const healthTimeout = 3 * time.Second

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger         *slog.Logger
	TenantService  *tenant.Service
	Assistant      assistant.Chatter // nil disables the chat route
	AssistantLimit middleware.TenantLimit
	CORS           config.CORSConfig
	IPRateLimit    config.IPRateLimitConfig
	MaxRequestBody int64
	TracingEnabled bool
	Healthchecks   map[string]func(context.Context) error
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// CORS runs outermost so preflights, throttled and failed responses
	// all carry the headers.
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBody))
	if cfg.TracingEnabled {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "tenantctx")
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, http.StatusNotFound, "not found")
	})

	r.Get("/health", healthHandler(cfg.Healthchecks))

	rateLimiters := middleware.CreateRateLimiters(cfg.IPRateLimit, cfg.Logger)

	tenantHandler := tenantcontext.NewHandler(cfg.Logger, cfg.TenantService)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["tenant"])
		r.HandleFunc("/v1/tenant-context", tenantHandler.Get)
	})

	if cfg.Assistant != nil {
		limit := cfg.AssistantLimit
		limit.Endpoint = AssistantEndpoint

		assistantHandler := assistant.NewHandler(cfg.Logger, cfg.Assistant)
		r.Group(func(r chi.Router) {
			r.Use(rateLimiters["assistant"])
			r.Use(middleware.TenantAuth(cfg.TenantService, limit))
			r.Post("/v1/assistant/chat", assistantHandler.Chat)
		})
	}

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				healthy = false
				continue
			}
			results[name] = "ok"
		}

		if !healthy {
			httputil.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Checks: results})
			return
		}
		httputil.JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}
