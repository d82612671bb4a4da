package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/tendant/tenantctx/pkg/ratelimit"
)

// RateLimitsRepository keeps fixed-window request counters in postgres.
type RateLimitsRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRateLimitsRepository creates a new rate limits repository.
func NewRateLimitsRepository(db *sql.DB) *RateLimitsRepository {
	return &RateLimitsRepository{db: db, now: time.Now}
}

// CheckRateLimit increments the counter of the current window with a single
// upsert, so concurrent requests are serialized by the row lock.
func (r *RateLimitsRepository) CheckRateLimit(ctx context.Context, tenantID, endpoint string, limit int, window time.Duration) (bool, error) {
	if err := ratelimit.Validate(tenantID, endpoint, limit, window); err != nil {
		return false, err
	}

	query := `
		INSERT INTO rate_limits (tenant_id, endpoint, window_start, request_count, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (tenant_id, endpoint, window_start)
		DO UPDATE SET request_count = rate_limits.request_count + 1, updated_at = NOW()
		RETURNING request_count
	`

	var count int64
	windowStart := ratelimit.WindowStart(r.now(), window)
	if err := r.db.QueryRowContext(ctx, query, tenantID, endpoint, windowStart).Scan(&count); err != nil {
		return false, err
	}

	return count <= int64(limit), nil
}

// Get returns the counter of the window containing now.
func (r *RateLimitsRepository) Get(ctx context.Context, tenantID, endpoint string, window time.Duration) (*ratelimit.Record, error) {
	rec := &ratelimit.Record{
		TenantID:    tenantID,
		Endpoint:    endpoint,
		WindowStart: ratelimit.WindowStart(r.now(), window),
	}

	query := `
		SELECT request_count
		FROM rate_limits
		WHERE tenant_id = $1 AND endpoint = $2 AND window_start = $3
	`
	err := r.db.QueryRowContext(ctx, query, tenantID, endpoint, rec.WindowStart).Scan(&rec.Count)
	if err == sql.ErrNoRows {
		return rec, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteBefore removes windows that started before cutoff.
func (r *RateLimitsRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
