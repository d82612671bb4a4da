// Package cache stores short-lived JSON values scoped to a tenant.
//
// Entries are keyed by (tenant id, cache key) and expire after their TTL.
// There is no explicit invalidation and no size bound; capacity is left to
// the backing store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// TenantContextKey is the cache key of the tenant record.
	TenantContextKey = "tenant_context"
	// DefaultTTL is how long cached tenant records stay valid.
	DefaultTTL = 5 * time.Minute
)

// ErrMiss is returned by Store.Get when no live entry exists.
var ErrMiss = errors.New("cache miss")

// Store is a tenant-scoped key-value store with TTL expiry.
type Store interface {
	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, tenantID, key string) (json.RawMessage, error)
	// Set stores value for ttl, replacing any existing entry.
	Set(ctx context.Context, tenantID, key string, value json.RawMessage, ttl time.Duration) error
}

// Entry is one cached value.
type Entry struct {
	TenantID  string
	Key       string
	Value     json.RawMessage
	ExpiresAt time.Time
}

// Expired reports whether the entry is no longer valid at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Status distinguishes why a lookup did or did not produce a value.
type Status int

const (
	StatusMiss Status = iota
	StatusHit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusError:
		return "error"
	default:
		return "miss"
	}
}

// Result is the outcome of Lookup. Callers that only care about hits can
// use Hit; Err is set when Status is StatusError.
type Result struct {
	Status Status
	Value  json.RawMessage
	Err    error
}

// Hit reports whether the lookup produced a value.
func (r Result) Hit() bool {
	return r.Status == StatusHit
}

// Lookup reads an entry and classifies the outcome. A store failure is
// reported as StatusError rather than returned, so callers can degrade to
// a live read.
func Lookup(ctx context.Context, store Store, tenantID, key string) Result {
	value, err := store.Get(ctx, tenantID, key)
	switch {
	case errors.Is(err, ErrMiss):
		return Result{Status: StatusMiss}
	case err != nil:
		return Result{Status: StatusError, Err: err}
	case len(value) == 0:
		return Result{Status: StatusMiss}
	default:
		return Result{Status: StatusHit, Value: value}
	}
}

// Key builds the flat storage key used by key-value backends.
func Key(tenantID, key string) string {
	return fmt.Sprintf("tenant_cache:%s:%s", tenantID, key)
}
