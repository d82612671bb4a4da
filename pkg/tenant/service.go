// Package tenant resolves the tenant context of an authenticated request.
//
// The flow for one request is:
//
//	credential -> identity -> tenant id -> rate check -> cache
//	  hit:  return the cached record
//	  miss: set current tenant -> fetch record -> populate cache -> return
//
// Every dependency is an interface so the flow can run against postgres,
// redis or in-memory backends.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/tenantctx/pkg/auth"
	"github.com/tendant/tenantctx/pkg/cache"
	"github.com/tendant/tenantctx/pkg/domain"
	"github.com/tendant/tenantctx/pkg/ratelimit"
)

// Endpoint is the rate-limit scope of the tenant-context flow.
const Endpoint = "tenant-context"

// SessionFactory opens backend sessions for tenant-scoped reads.
type SessionFactory interface {
	Session(ctx context.Context) (domain.TenantSession, error)
}

// Config holds the tenant-context policy.
type Config struct {
	RateLimit  int
	RateWindow time.Duration
	CacheTTL   time.Duration
}

// RequestContext is the state of one request. It is never persisted.
type RequestContext struct {
	Identity *domain.Identity
	TenantID string
	Tenant   json.RawMessage
	CacheHit bool
}

// Service runs the tenant-context flow.
type Service struct {
	config   Config
	identity auth.IdentityResolver
	limiter  ratelimit.Limiter
	cache    cache.Store
	sessions SessionFactory
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService creates a tenant-context service. Zero config values fall
// back to 1000 requests per 60 minutes and a 5 minute cache TTL.
func NewService(
	config Config,
	identity auth.IdentityResolver,
	limiter ratelimit.Limiter,
	store cache.Store,
	sessions SessionFactory,
	logger *slog.Logger,
) *Service {
	if config.RateLimit == 0 {
		config.RateLimit = ratelimit.DefaultLimit
	}
	if config.RateWindow == 0 {
		config.RateWindow = ratelimit.DefaultWindow
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = cache.DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:   config,
		identity: identity,
		limiter:  limiter,
		cache:    store,
		sessions: sessions,
		logger:   logger,
		tracer:   otel.Tracer("github.com/tendant/tenantctx/pkg/tenant"),
	}
}

// Resolve runs the full flow for the given Authorization header value.
func (s *Service) Resolve(ctx context.Context, authorization string) (*RequestContext, error) {
	ctx, span := s.tracer.Start(ctx, "tenant.Resolve")
	defer span.End()

	rc, err := s.resolve(ctx, authorization)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("tenant.id", rc.TenantID),
		attribute.Bool("tenant.cache_hit", rc.CacheHit),
	)
	return rc, nil
}

func (s *Service) resolve(ctx context.Context, authorization string) (*RequestContext, error) {
	rc, err := s.Authenticate(ctx, authorization)
	if err != nil {
		return nil, err
	}

	if err := s.CheckRateLimit(ctx, rc.TenantID, Endpoint, s.config.RateLimit, s.config.RateWindow); err != nil {
		return nil, err
	}

	if res := cache.Lookup(ctx, s.cache, rc.TenantID, cache.TenantContextKey); res.Hit() {
		rc.Tenant = res.Value
		rc.CacheHit = true
		return rc, nil
	} else if res.Status == cache.StatusError {
		s.logger.WarnContext(ctx, "tenant cache read failed, fetching live",
			"tenant_id", rc.TenantID,
			"error", res.Err,
		)
	}

	record, err := s.fetchTenant(ctx, rc.TenantID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, rc.TenantID, cache.TenantContextKey, record, s.config.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "tenant cache write failed",
			"tenant_id", rc.TenantID,
			"error", err,
		)
	}

	rc.Tenant = record
	return rc, nil
}

// Authenticate resolves the credential to an identity and its tenant.
func (s *Service) Authenticate(ctx context.Context, authorization string) (*RequestContext, error) {
	credential, err := auth.ExtractCredential(authorization)
	if err != nil {
		return nil, err
	}

	identity, err := s.identity.ResolveUser(ctx, credential)
	if err != nil {
		s.logBackendError(ctx, err)
		return nil, err
	}
	if identity == nil {
		return nil, domain.ErrInvalidCredential
	}

	tenantID, ok := identity.TenantID()
	if !ok {
		return nil, domain.ErrNoTenantAssociation
	}

	return &RequestContext{Identity: identity, TenantID: tenantID}, nil
}

// CheckRateLimit consumes one request of the tenant's budget for endpoint.
// A limiter failure is returned as a backend error, never allowed through.
func (s *Service) CheckRateLimit(ctx context.Context, tenantID, endpoint string, limit int, window time.Duration) error {
	allowed, err := s.limiter.CheckRateLimit(ctx, tenantID, endpoint, limit, window)
	if err != nil {
		err = domain.NewBackendError("check rate limit", err)
		s.logBackendError(ctx, err, "tenant_id", tenantID, "endpoint", endpoint)
		return err
	}
	if !allowed {
		s.logger.WarnContext(ctx, "tenant rate limit exceeded",
			"tenant_id", tenantID,
			"endpoint", endpoint,
			"limit", limit,
			"window", window,
		)
		return domain.ErrRateLimitExceeded
	}
	return nil
}

// fetchTenant scopes a backend session to the tenant, reads the record and
// returns it marshaled. The same bytes are cached and returned, so cache
// hits are identical to fresh reads.
func (s *Service) fetchTenant(ctx context.Context, tenantID string) (json.RawMessage, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		err = domain.NewBackendError("open session", err)
		s.logBackendError(ctx, err, "tenant_id", tenantID)
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.WarnContext(ctx, "failed to close tenant session", "tenant_id", tenantID, "error", err)
		}
	}()

	if err := session.SetCurrentTenant(ctx, tenantID); err != nil {
		err = domain.NewBackendError("set current tenant", err)
		s.logBackendError(ctx, err, "tenant_id", tenantID)
		return nil, err
	}

	record, err := session.GetTenantByID(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, domain.ErrTenantNotFound) {
			s.logger.ErrorContext(ctx, "tenant lookup failed", "tenant_id", tenantID, "error", err)
		}
		return nil, domain.ErrTenantNotFound
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, domain.NewBackendError("encode tenant", err)
	}
	return data, nil
}

func (s *Service) logBackendError(ctx context.Context, err error, args ...any) {
	var be *domain.BackendError
	if !errors.As(err, &be) {
		return
	}
	args = append(args, "op", be.Op, "error", be.Err)
	s.logger.ErrorContext(ctx, "backend call failed", args...)
}
