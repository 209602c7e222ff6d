// internal/models/tenant.go
package models

import "time"

const DefaultBrandColor = "#007bff"

type Branding struct {
	LogoURL     string `json:"logoUrl" db:"logo_url"`
	BrandColor  string `json:"brandColor" db:"brand_color"`
	CompanyName string `json:"companyName" db:"company_name"`
	FooterText  string `json:"footerText" db:"footer_text"`
}

// WithDefaults fills in the stock brand color.
func (b Branding) WithDefaults() Branding {
	if b.BrandColor == "" {
		b.BrandColor = DefaultBrandColor
	}
	return b
}

// Tenant is a customer organization.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Branding  Branding  `json:"branding"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// App is a product under a tenant holding one API key.
type App struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"tenantId" db:"tenant_id"`
	Name         string     `json:"name" db:"name"`
	Slug         string     `json:"slug" db:"slug"`
	APIKeyHash   string     `json:"-" db:"api_key_hash"`
	APIKeyPrefix string     `json:"apiKeyPrefix" db:"api_key_prefix"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty" db:"revoked_at"`
}

// Identity is the verified caller behind an API key.
type Identity struct {
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
	AppID      string `json:"appId"`
	AppName    string `json:"appName"`
	KeyPrefix  string `json:"keyPrefix"`
}

// Actor is the audit actor string for this identity.
func (i Identity) Actor() string {
	return "api-key:" + i.KeyPrefix
}
