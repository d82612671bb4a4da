package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tendant/tenantctx/pkg/cache"
)

// TenantCacheRepository implements cache.Store on the tenant_cache table.
type TenantCacheRepository struct {
	db *sql.DB
}

// NewTenantCacheRepository creates a new tenant cache repository.
func NewTenantCacheRepository(db *sql.DB) *TenantCacheRepository {
	return &TenantCacheRepository{db: db}
}

// Get returns a live entry or cache.ErrMiss.
func (r *TenantCacheRepository) Get(ctx context.Context, tenantID, key string) (json.RawMessage, error) {
	query := `
		SELECT value
		FROM tenant_cache
		WHERE tenant_id = $1 AND cache_key = $2 AND expires_at > NOW()
	`

	var value []byte
	err := r.db.QueryRowContext(ctx, query, tenantID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts an entry expiring ttl from now.
func (r *TenantCacheRepository) Set(ctx context.Context, tenantID, key string, value json.RawMessage, ttl time.Duration) error {
	query := `
		INSERT INTO tenant_cache (tenant_id, cache_key, value, expires_at)
		VALUES ($1, $2, $3, NOW() + ($4::double precision * INTERVAL '1 millisecond'))
		ON CONFLICT (tenant_id, cache_key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`
	_, err := r.db.ExecContext(ctx, query, tenantID, key, string(value), ttl.Milliseconds())
	return err
}

// DeleteExpired removes entries past their expiry.
func (r *TenantCacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tenant_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
