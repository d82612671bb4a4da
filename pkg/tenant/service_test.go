package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/tenantctx/pkg/cache"
	"github.com/tendant/tenantctx/pkg/domain"
)

const testTenantID = "6f1c0d1e-3d7a-4a49-9a38-1c2f0a8e9b11"

// recorder collects backend calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeResolver struct {
	rec      *recorder
	identity *domain.Identity
	err      error
}

func (f *fakeResolver) ResolveUser(_ context.Context, credential string) (*domain.Identity, error) {
	f.rec.add("resolveUser:" + credential)
	return f.identity, f.err
}

type fakeLimiter struct {
	rec     *recorder
	allowed bool
	err     error
	limit   int
	window  time.Duration
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, tenantID, endpoint string, limit int, window time.Duration) (bool, error) {
	f.rec.add("checkRateLimit:" + tenantID + ":" + endpoint)
	f.limit = limit
	f.window = window
	return f.allowed, f.err
}

type fakeCache struct {
	rec     *recorder
	values  map[string]json.RawMessage
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func (f *fakeCache) Get(_ context.Context, tenantID, key string) (json.RawMessage, error) {
	f.rec.add("getCachedValue:" + tenantID + ":" + key)
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[tenantID+"/"+key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, tenantID, key string, value json.RawMessage, ttl time.Duration) error {
	f.rec.add("setCachedValue:" + tenantID + ":" + key)
	f.lastTTL = ttl
	if f.setErr != nil {
		return f.setErr
	}
	f.values[tenantID+"/"+key] = value
	return nil
}

type fakeSessions struct {
	rec     *recorder
	tenant  *domain.Tenant
	openErr error
	setErr  error
	getErr  error
	closed  int
}

func (f *fakeSessions) Session(context.Context) (domain.TenantSession, error) {
	f.rec.add("openSession")
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeSession{parent: f}, nil
}

type fakeSession struct {
	parent *fakeSessions
}

func (s *fakeSession) SetCurrentTenant(_ context.Context, tenantID string) error {
	s.parent.rec.add("setCurrentTenant:" + tenantID)
	return s.parent.setErr
}

func (s *fakeSession) GetTenantByID(_ context.Context, tenantID string) (*domain.Tenant, error) {
	s.parent.rec.add("getTenantById:" + tenantID)
	if s.parent.getErr != nil {
		return nil, s.parent.getErr
	}
	if s.parent.tenant == nil {
		return nil, domain.ErrTenantNotFound
	}
	return s.parent.tenant, nil
}

func (s *fakeSession) Close() error {
	s.parent.closed++
	return nil
}

type fixture struct {
	rec      *recorder
	resolver *fakeResolver
	limiter  *fakeLimiter
	cache    *fakeCache
	sessions *fakeSessions
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := &recorder{}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	f := &fixture{
		rec: rec,
		resolver: &fakeResolver{rec: rec, identity: &domain.Identity{
			ID:       "user-1",
			Metadata: map[string]any{"tenant_id": testTenantID},
		}},
		limiter: &fakeLimiter{rec: rec, allowed: true},
		cache:   &fakeCache{rec: rec, values: map[string]json.RawMessage{}},
		sessions: &fakeSessions{rec: rec, tenant: &domain.Tenant{
			ID:        uuid.MustParse(testTenantID),
			Name:      "Acme Agency",
			Slug:      "acme",
			Settings:  json.RawMessage(`{"theme":"dark"}`),
			CreatedAt: created,
			UpdatedAt: created,
		}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(Config{}, f.resolver, f.limiter, f.cache, f.sessions, logger)
	return f
}

func TestResolve_MissingAuthorization(t *testing.T) {
	f := newFixture(t)

	rc, err := f.service.Resolve(context.Background(), "")

	assert.Nil(t, rc)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Empty(t, f.rec.list(), "no backend calls without a credential")
}

func TestResolve_InvalidCredential(t *testing.T) {
	f := newFixture(t)
	f.resolver.identity = nil
	f.resolver.err = domain.ErrInvalidCredential

	_, err := f.service.Resolve(context.Background(), "Bearer bad")

	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, []string{"resolveUser:bad"}, f.rec.list())
}

func TestResolve_ResolverReturnsNoUser(t *testing.T) {
	f := newFixture(t)
	f.resolver.identity = nil

	_, err := f.service.Resolve(context.Background(), "Bearer token")

	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestResolve_NoTenantAssociation(t *testing.T) {
	f := newFixture(t)
	f.resolver.identity.Metadata = map[string]any{"full_name": "No Tenant"}

	_, err := f.service.Resolve(context.Background(), "Bearer token")

	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	assert.Equal(t, "no tenant associated with user", err.Error())
	assert.Equal(t, []string{"resolveUser:token"}, f.rec.list(), "rate limiter is never invoked")
}

func TestResolve_RateLimitExceeded(t *testing.T) {
	f := newFixture(t)
	f.limiter.allowed = false

	_, err := f.service.Resolve(context.Background(), "Bearer token")

	assert.ErrorIs(t, err, domain.ErrRateLimitExceeded)
	assert.Equal(t, []string{
		"resolveUser:token",
		"checkRateLimit:" + testTenantID + ":tenant-context",
	}, f.rec.list(), "cache and tenant fetch are not touched")
}

func TestResolve_RateLimiterFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.limiter.err = errors.New("connection reset")

	_, err := f.service.Resolve(context.Background(), "Bearer token")

	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.NotErrorIs(t, err, domain.ErrRateLimitExceeded)
	assert.Len(t, f.rec.list(), 2)
}

func TestResolve_DefaultPolicy(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Resolve(context.Background(), "Bearer token")
	require.NoError(t, err)

	assert.Equal(t, 1000, f.limiter.limit)
	assert.Equal(t, 60*time.Minute, f.limiter.window)
	assert.Equal(t, 5*time.Minute, f.cache.lastTTL)
}

func TestResolve_CacheHit(t *testing.T) {
	f := newFixture(t)
	cached := json.RawMessage(`{"id":"` + testTenantID + `","name":"Cached"}`)
	f.cache.values[testTenantID+"/tenant_context"] = cached

	rc, err := f.service.Resolve(context.Background(), "Bearer token")
	require.NoError(t, err)

	assert.True(t, rc.CacheHit)
	assert.Equal(t, string(cached), string(rc.Tenant))
	assert.Equal(t, []string{
		"resolveUser:token",
		"checkRateLimit:" + testTenantID + ":tenant-context",
		"getCachedValue:" + testTenantID + ":tenant_context",
	}, f.rec.list(), "no context set and no fetch on a hit")
}

func TestResolve_CacheMiss(t *testing.T) {
	f := newFixture(t)

	rc, err := f.service.Resolve(context.Background(), "Bearer token")
	require.NoError(t, err)

	assert.False(t, rc.CacheHit)
	assert.Equal(t, testTenantID, rc.TenantID)
	assert.Equal(t, []string{
		"resolveUser:token",
		"checkRateLimit:" + testTenantID + ":tenant-context",
		"getCachedValue:" + testTenantID + ":tenant_context",
		"openSession",
		"setCurrentTenant:" + testTenantID,
		"getTenantById:" + testTenantID,
		"setCachedValue:" + testTenantID + ":tenant_context",
	}, f.rec.list())
	assert.Equal(t, 1, f.sessions.closed)

	assert.Equal(t, 5*time.Minute, f.cache.lastTTL)
	assert.Equal(t, string(rc.Tenant), string(f.cache.values[testTenantID+"/tenant_context"]))

	var tenant domain.Tenant
	require.NoError(t, json.Unmarshal(rc.Tenant, &tenant))
	assert.Equal(t, "Acme Agency", tenant.Name)
}

func TestResolve_CacheReadErrorFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.cache.getErr = errors.New("cache unavailable")
	f.cache.setErr = errors.New("cache unavailable")

	rc, err := f.service.Resolve(context.Background(), "Bearer token")
	require.NoError(t, err, "cache failures never fail the request")

	assert.False(t, rc.CacheHit)
	assert.Contains(t, f.rec.list(), "getTenantById:"+testTenantID)
	assert.NotEmpty(t, rc.Tenant)
}

func TestResolve_TenantNotFound(t *testing.T) {
	tests := []struct {
		name   string
		tenant *domain.Tenant
		getErr error
	}{
		{name: "no row", tenant: nil},
		{name: "lookup error", getErr: errors.New("relation does not exist")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.sessions.tenant = tt.tenant
			f.sessions.getErr = tt.getErr

			_, err := f.service.Resolve(context.Background(), "Bearer token")

			assert.ErrorIs(t, err, domain.ErrTenantNotFound)
			assert.NotContains(t, f.rec.list(), "setCachedValue:"+testTenantID+":tenant_context")
		})
	}
}

func TestResolve_SessionFailures(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.openErr = errors.New("pool exhausted")

		_, err := f.service.Resolve(context.Background(), "Bearer token")
		assert.ErrorIs(t, err, domain.ErrBackend)
	})

	t.Run("set current tenant", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.setErr = errors.New("permission denied")

		_, err := f.service.Resolve(context.Background(), "Bearer token")
		assert.ErrorIs(t, err, domain.ErrBackend)
		assert.NotContains(t, f.rec.list(), "getTenantById:"+testTenantID)
		assert.Equal(t, 1, f.sessions.closed)
	})
}

func TestResolve_MissThenHitIsIdentical(t *testing.T) {
	f := newFixture(t)
	store := cache.NewMemoryStore()
	f.service = NewService(Config{}, f.resolver, f.limiter, store, f.sessions, nil)

	first, err := f.service.Resolve(context.Background(), "Bearer token")
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := f.service.Resolve(context.Background(), "Bearer token")
	require.NoError(t, err)
	require.True(t, second.CacheHit)

	assert.Equal(t, []byte(first.Tenant), []byte(second.Tenant))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	rc, err := f.service.Authenticate(context.Background(), "Bearer token")
	require.NoError(t, err)

	assert.Equal(t, "user-1", rc.Identity.ID)
	assert.Equal(t, testTenantID, rc.TenantID)
	assert.Nil(t, rc.Tenant)
}
