// internal/templates/resolver.go
package templates

import (
	"context"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
)

type TemplateStore interface {
	Find(ctx context.Context, tenantID, appID, event string, channel models.Channel) (*models.Template, error)
	Get(ctx context.Context, tenantID, id string) (*models.Template, error)
}

type LayoutStore interface {
	ByID(ctx context.Context, tenantID, id string) (*models.BaseLayout, error)
	DefaultFor(ctx context.Context, tenantID string) (*models.BaseLayout, error)
}

type TenantStore interface {
	Get(ctx context.Context, id string) (*models.Tenant, error)
}

// layoutStep yields a layout source, or ok=false to fall through to the next step.
type layoutStep func(ctx context.Context, tenantID string, tpl *models.Template) (source string, ok bool, err error)

// Resolver finds the content for a notification and renders it through the layout cascade.
type Resolver struct {
	templates TemplateStore
	layouts   LayoutStore
	tenants   TenantStore
	engine    *Engine
	logger    logger.Logger
	cascade   []layoutStep
}

func NewResolver(templates TemplateStore, layouts LayoutStore, tenants TenantStore, log logger.Logger) *Resolver {
	r := &Resolver{
		templates: templates,
		layouts:   layouts,
		tenants:   tenants,
		engine:    NewEngine(),
		logger:    logger.Component(log, "templates"),
	}
	r.cascade = []layoutStep{r.explicitLayout, r.tenantDefaultLayout, builtinLayout}
	return r
}

// RenderEmail renders the EMAIL content of an event inside the tenant's layout.
// It returns nil when there is neither a template nor a fallback body.
func (r *Resolver) RenderEmail(ctx context.Context, tenantID, appID, event string, data map[string]interface{}, fallbackBody, fallbackSubject string) (*models.RenderedEmail, error) {
	tenant, err := r.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	tpl, err := r.templates.Find(ctx, tenantID, appID, event, models.ChannelEmail)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find template", err)
	}

	var body, subject string
	switch {
	case tpl != nil:
		content, err := r.renderTemplate(tpl, data, event)
		if err != nil {
			return nil, err
		}
		body, subject = content.Body, content.Subject
	case fallbackBody != "":
		body = fallbackBody
		subject = fallbackSubject
		if subject == "" {
			subject = event
		}
	default:
		return nil, nil
	}

	html, err := r.wrap(ctx, tenant, tpl, body, data)
	if err != nil {
		return nil, err
	}
	return &models.RenderedEmail{Subject: subject, HTML: html}, nil
}

// RenderContent renders a non-email channel template without a layout. Nil when no template exists.
func (r *Resolver) RenderContent(ctx context.Context, tenantID, appID, event string, channel models.Channel, data map[string]interface{}) (*models.RenderedContent, error) {
	tpl, err := r.templates.Find(ctx, tenantID, appID, event, channel)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find template", err)
	}
	if tpl == nil {
		return nil, nil
	}
	return r.renderTemplate(tpl, data, "")
}

// Preview renders one template of the tenant with sample data. EMAIL templates get the full layout.
func (r *Resolver) Preview(ctx context.Context, tenantID, templateID string, sample map[string]interface{}) (*models.RenderedContent, error) {
	tpl, err := r.templates.Get(ctx, tenantID, templateID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get template", err)
	}
	if tpl == nil {
		return nil, apperrors.NewNotFoundError("Template", templateID)
	}

	if tpl.Channel != models.ChannelEmail {
		return r.renderTemplate(tpl, sample, "")
	}

	tenant, err := r.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	content, err := r.renderTemplate(tpl, sample, tpl.Event)
	if err != nil {
		return nil, err
	}
	html, err := r.wrap(ctx, tenant, tpl, content.Body, sample)
	if err != nil {
		return nil, err
	}
	return &models.RenderedContent{Subject: content.Subject, Body: html}, nil
}

func (r *Resolver) tenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	tenant, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get tenant", err)
	}
	if tenant == nil {
		return nil, apperrors.NewNotFoundError("Tenant", tenantID)
	}
	return tenant, nil
}

// renderTemplate renders body and subject. defaultSubject is used as the subject source when the
// template has none; an empty defaultSubject leaves the subject empty.
func (r *Resolver) renderTemplate(tpl *models.Template, data map[string]interface{}, defaultSubject string) (*models.RenderedContent, error) {
	body, err := r.engine.Render(tpl.BodyTemplate, data)
	if err != nil {
		return nil, r.templateError(tpl, err)
	}

	subjectSrc := tpl.Subject
	if subjectSrc == "" {
		subjectSrc = defaultSubject
	}
	var subject string
	if subjectSrc != "" {
		if subject, err = r.engine.Render(subjectSrc, data); err != nil {
			return nil, r.templateError(tpl, err)
		}
	}
	return &models.RenderedContent{Subject: subject, Body: body}, nil
}

func (r *Resolver) templateError(tpl *models.Template, err error) error {
	r.logger.Warn("template render failed", map[string]interface{}{
		"templateId": tpl.ID,
		"error":      err,
	})
	return apperrors.NewConfigurationError("template "+tpl.ID+" failed to render", err)
}

func (r *Resolver) wrap(ctx context.Context, tenant *models.Tenant, tpl *models.Template, content string, data map[string]interface{}) (string, error) {
	source, err := r.layoutSource(ctx, tenant.ID, tpl)
	if err != nil {
		return "", err
	}

	branding := tenant.Branding.WithDefaults()
	layoutData := map[string]interface{}{
		"logoUrl":     branding.LogoURL,
		"brandColor":  branding.BrandColor,
		"companyName": branding.CompanyName,
		"footerText":  branding.FooterText,
		"content":     content,
	}
	for k, v := range data {
		layoutData[k] = v
	}

	html, err := r.engine.Render(source, layoutData)
	if err != nil {
		return "", apperrors.NewConfigurationError("email layout failed to render", err)
	}
	return html, nil
}

func (r *Resolver) layoutSource(ctx context.Context, tenantID string, tpl *models.Template) (string, error) {
	for _, step := range r.cascade {
		source, ok, err := step(ctx, tenantID, tpl)
		if err != nil {
			return "", err
		}
		if ok {
			return source, nil
		}
	}
	return DefaultLayout, nil
}

func (r *Resolver) explicitLayout(ctx context.Context, tenantID string, tpl *models.Template) (string, bool, error) {
	if tpl == nil || tpl.BaseTemplateID == "" {
		return "", false, nil
	}
	l, err := r.layouts.ByID(ctx, tenantID, tpl.BaseTemplateID)
	if err != nil {
		return "", false, apperrors.NewDatabaseError("get layout", err)
	}
	if l == nil || l.HTMLTemplate == "" {
		return "", false, nil
	}
	return l.HTMLTemplate, true, nil
}

func (r *Resolver) tenantDefaultLayout(ctx context.Context, tenantID string, _ *models.Template) (string, bool, error) {
	l, err := r.layouts.DefaultFor(ctx, tenantID)
	if err != nil {
		return "", false, apperrors.NewDatabaseError("default layout", err)
	}
	if l == nil || l.HTMLTemplate == "" {
		return "", false, nil
	}
	return l.HTMLTemplate, true, nil
}

func builtinLayout(context.Context, string, *models.Template) (string, bool, error) {
	return DefaultLayout, true, nil
}
