// Package ratelimit implements fixed-window request budgets scoped to a
// tenant and an endpoint.
//
// Each call to CheckRateLimit atomically increments the counter of the
// current window and reports whether the new count is still within the
// limit. Windows are aligned to multiples of the window length, so every
// instance sharing a store agrees on the bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults applied to the tenant-context endpoint.
const (
	DefaultLimit  = 1000
	DefaultWindow = 60 * time.Minute
)

var (
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrInvalidWindow = errors.New("invalid window")
	ErrKeyRequired   = errors.New("tenant and endpoint are required")
)

// Limiter is the atomic check-and-increment contract of the backend.
type Limiter interface {
	CheckRateLimit(ctx context.Context, tenantID, endpoint string, limit int, window time.Duration) (bool, error)
}

// Record is the counter of one (tenant, endpoint, window) bucket.
type Record struct {
	TenantID    string
	Endpoint    string
	WindowStart time.Time
	Count       int64
}

// WindowStart returns the start of the fixed window containing t.
func WindowStart(t time.Time, window time.Duration) time.Time {
	return t.UTC().Truncate(window)
}

// PruneCutoff returns the oldest window start that can still be live when
// no window in use is longer than maxWindow. Windows of different lengths
// are not nested, so a bucket is only known to be finished once it started
// more than maxWindow ago.
func PruneCutoff(now time.Time, maxWindow time.Duration) time.Time {
	return now.UTC().Add(-maxWindow)
}

// Key builds the storage key of a bucket.
func Key(tenantID, endpoint string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", tenantID, endpoint, windowStart.Unix())
}

// Validate checks the arguments shared by every Limiter implementation.
func Validate(tenantID, endpoint string, limit int, window time.Duration) error {
	if tenantID == "" || endpoint == "" {
		return ErrKeyRequired
	}
	if limit <= 0 {
		return ErrInvalidLimit
	}
	if window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
