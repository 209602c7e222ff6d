// internal/store/tenants.go
package store

import (
	"context"
	"database/sql"

	"notification-pipeline/internal/models"

	"github.com/pkg/errors"
)

type TenantStore struct {
	db *sql.DB
}

func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

// Get returns the tenant with branding, or nil when it does not exist.
func (s *TenantStore) Get(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, logo_url, brand_color, company_name, footer_text, is_active, created_at
		FROM tenants
		WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Branding.LogoURL, &t.Branding.BrandColor,
		&t.Branding.CompanyName, &t.Branding.FooterText, &t.IsActive, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get tenant")
	}
	return &t, nil
}

// AppsByPrefix lists active, unrevoked apps whose key starts with prefix.
func (s *TenantStore) AppsByPrefix(ctx context.Context, prefix string) ([]models.App, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, slug, api_key_hash, api_key_prefix, is_active
		FROM apps
		WHERE api_key_prefix = $1 AND is_active = true AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "query apps by prefix")
	}
	defer rows.Close()

	var apps []models.App
	for rows.Next() {
		var a models.App
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.Slug, &a.APIKeyHash, &a.APIKeyPrefix, &a.IsActive); err != nil {
			return nil, errors.Wrap(err, "scan app")
		}
		apps = append(apps, a)
	}
	return apps, errors.Wrap(rows.Err(), "iterate apps")
}
