// internal/store/templates.go
package store

import (
	"context"
	"database/sql"

	"notification-pipeline/internal/models"

	"github.com/pkg/errors"
)

const templateColumns = `id, tenant_id, app_id, event, channel, subject, body_template, base_template_id, is_active, updated_at`

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Find returns the active template for (tenant, app, event, channel), or nil.
func (s *TemplateStore) Find(ctx context.Context, tenantID, appID, event string, channel models.Channel) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE tenant_id = $1 AND app_id = $2 AND event = $3 AND channel = $4 AND is_active = true`,
		tenantID, appID, event, string(channel))
	return s.scanOne(row, "find template")
}

// Get loads a template by id, only if it belongs to the tenant.
func (s *TemplateStore) Get(ctx context.Context, tenantID, id string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return s.scanOne(row, "get template")
}

func (s *TemplateStore) scanOne(row scanner, op string) (*models.Template, error) {
	var (
		t             models.Template
		ch            string
		subject, base sql.NullString
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.AppID, &t.Event, &ch, &subject, &t.BodyTemplate, &base, &t.IsActive, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	t.Channel = models.Channel(ch)
	t.Subject = subject.String
	t.BaseTemplateID = base.String
	return &t, nil
}

type LayoutStore struct {
	db *sql.DB
}

func NewLayoutStore(db *sql.DB) *LayoutStore {
	return &LayoutStore{db: db}
}

// ByID returns an active layout of the tenant, or nil.
func (s *LayoutStore) ByID(ctx context.Context, tenantID, id string) (*models.BaseLayout, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, html_template, is_default, is_active
		FROM base_layouts
		WHERE id = $1 AND tenant_id = $2 AND is_active = true`, id, tenantID)
	return scanLayout(row, "get layout")
}

// DefaultFor returns the tenant's active default layout, or nil.
func (s *LayoutStore) DefaultFor(ctx context.Context, tenantID string) (*models.BaseLayout, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, html_template, is_default, is_active
		FROM base_layouts
		WHERE tenant_id = $1 AND is_default = true AND is_active = true
		LIMIT 1`, tenantID)
	return scanLayout(row, "default layout")
}

func scanLayout(row scanner, op string) (*models.BaseLayout, error) {
	var l models.BaseLayout
	err := row.Scan(&l.ID, &l.TenantID, &l.Name, &l.HTMLTemplate, &l.IsDefault, &l.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return &l, nil
}
