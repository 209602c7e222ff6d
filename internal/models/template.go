// internal/models/template.go
package models

import "time"

// Template is event specific content for one (tenant, app, event, channel).
type Template struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenantId" db:"tenant_id"`
	AppID          string    `json:"appId" db:"app_id"`
	Event          string    `json:"event" db:"event"`
	Channel        Channel   `json:"channel" db:"channel"`
	Subject        string    `json:"subject,omitempty" db:"subject"`
	BodyTemplate   string    `json:"bodyTemplate" db:"body_template"`
	BaseTemplateID string    `json:"baseTemplateId,omitempty" db:"base_template_id"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// BaseLayout is a tenant wide email shell with a {{{content}}} slot.
type BaseLayout struct {
	ID           string `json:"id" db:"id"`
	TenantID     string `json:"tenantId" db:"tenant_id"`
	Name         string `json:"name" db:"name"`
	HTMLTemplate string `json:"htmlTemplate" db:"html_template"`
	IsDefault    bool   `json:"isDefault" db:"is_default"`
	IsActive     bool   `json:"isActive" db:"is_active"`
}

// RenderedEmail is a fully laid out email.
type RenderedEmail struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// RenderedContent is channel content without a layout.
type RenderedContent struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}
