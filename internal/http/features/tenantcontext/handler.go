package tenantcontext

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tendant/tenantctx/internal/http/middleware"
	"github.com/tendant/tenantctx/internal/httputil"
	"github.com/tendant/tenantctx/pkg/tenant"
)

// Resolver runs the tenant-context flow. *tenant.Service implements it.
type Resolver interface {
	Resolve(ctx context.Context, authorization string) (*tenant.RequestContext, error)
}

// Handler serves the tenant context of the caller.
type Handler struct {
	logger   *slog.Logger
	resolver Resolver
}

// NewHandler creates a new tenant-context handler.
func NewHandler(logger *slog.Logger, resolver Resolver) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
	}
}

// Response is the success body. Tenant holds the stored record bytes as-is.
type Response struct {
	Success bool            `json:"success"`
	Tenant  json.RawMessage `json:"tenant"`
}

// Get returns the caller's tenant record.
// ANY /v1/tenant-context
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rc, err := h.resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		middleware.AddError(r.Context(), err)
		httputil.RequestError(w, err)
		return
	}

	middleware.AddLogField(r.Context(), "tenant_id", rc.TenantID)
	middleware.AddLogField(r.Context(), "cache_hit", strconv.FormatBool(rc.CacheHit))

	httputil.JSON(w, http.StatusOK, Response{
		Success: true,
		Tenant:  rc.Tenant,
	})
}
