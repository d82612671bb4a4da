package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tenant represents an agency account. All site data is scoped to a tenant.
type Tenant struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TenantSession is one backend session in which tenant-scoped reads run.
// SetCurrentTenant scopes every later query of the session to a tenant.
type TenantSession interface {
	SetCurrentTenant(ctx context.Context, tenantID string) error
	GetTenantByID(ctx context.Context, tenantID string) (*Tenant, error)
	Close() error
}
