package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/tendant/tenantctx/internal/httputil"
	"github.com/tendant/tenantctx/pkg/tenant"
)

type contextKey string

// RequestContextKey is the context key for the authenticated tenant request.
const RequestContextKey contextKey = "tenant_request"

// Authenticator resolves a request's identity and tenant and enforces the
// per-tenant budget. *tenant.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*tenant.RequestContext, error)
	CheckRateLimit(ctx context.Context, tenantID, endpoint string, limit int, window time.Duration) error
}

// TenantLimit is the per-tenant budget of one endpoint.
type TenantLimit struct {
	Endpoint string
	Limit    int
	Window   time.Duration
}

// TenantAuth authenticates the Authorization header, charges the tenant's
// budget for the endpoint and stores the request context for the handler.
// Failures are answered with 429 or 400 and never reach the handler.
func TenantAuth(auth Authenticator, limit TenantLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rc, err := auth.Authenticate(ctx, r.Header.Get("Authorization"))
			if err != nil {
				AddError(ctx, err)
				httputil.RequestError(w, err)
				return
			}
			AddLogField(ctx, "tenant_id", rc.TenantID)

			if err := auth.CheckRateLimit(ctx, rc.TenantID, limit.Endpoint, limit.Limit, limit.Window); err != nil {
				AddError(ctx, err)
				httputil.RequestError(w, err)
				return
			}

			ctx = context.WithValue(ctx, RequestContextKey, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestContext extracts the tenant request context.
func GetRequestContext(ctx context.Context) (*tenant.RequestContext, bool) {
	rc, ok := ctx.Value(RequestContextKey).(*tenant.RequestContext)
	return rc, ok
}
