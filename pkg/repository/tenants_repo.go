package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/tenantctx/pkg/domain"
)

// TenantsRepository handles tenant data persistence.
type TenantsRepository struct {
	db *sql.DB
}

// NewTenantsRepository creates a new tenants repository.
func NewTenantsRepository(db *sql.DB) *TenantsRepository {
	return &TenantsRepository{db: db}
}

// Create creates a new tenant.
func (r *TenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	return r.CreateTx(ctx, r.db, tenant)
}

// CreateTx creates a new tenant within a transaction.
func (r *TenantsRepository) CreateTx(ctx context.Context, q Querier, tenant *domain.Tenant) error {
	settings := tenant.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	query := `
		INSERT INTO tenants (id, name, slug, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		string(settings),
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	return err
}

// Session starts a read-only transaction. The tenant set with
// SetCurrentTenant applies to every query run through the session, and
// Close ends it.
func (r *TenantsRepository) Session(ctx context.Context) (domain.TenantSession, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return &tenantSession{tx: tx}, nil
}

type tenantSession struct {
	tx *sql.Tx
}

// SetCurrentTenant sets app.current_tenant for the rest of the transaction,
// which the row-level security policy on tenants reads.
func (s *tenantSession) SetCurrentTenant(ctx context.Context, tenantID string) error {
	_, err := s.tx.ExecContext(ctx, `SELECT set_config('app.current_tenant', $1, true)`, tenantID)
	return err
}

// GetTenantByID retrieves a tenant by ID. Identifiers that are not UUIDs
// cannot match a row and report ErrTenantNotFound.
func (s *tenantSession) GetTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, domain.ErrTenantNotFound
	}

	query := `
		SELECT id, name, slug, settings, created_at, updated_at
		FROM tenants
		WHERE id = $1 AND deleted_at IS NULL
	`

	var tenant domain.Tenant
	var settings []byte
	err = s.tx.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&settings,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	tenant.Settings = settings

	return &tenant, nil
}

// Close commits the read-only transaction.
func (s *tenantSession) Close() error {
	err := s.tx.Commit()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
