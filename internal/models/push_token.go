// internal/models/push_token.go
package models

import "time"

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	return p == PlatformAndroid || p == PlatformIOS || p == PlatformWeb
}

// PushToken is a device registration. Token is unique per (tenant, app).
type PushToken struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenantId" db:"tenant_id"`
	AppID      string    `json:"appId" db:"app_id"`
	UserID     string    `json:"userId" db:"user_id"`
	Token      string    `json:"token" db:"token"`
	Platform   Platform  `json:"platform" db:"platform"`
	DeviceID   string    `json:"deviceId,omitempty" db:"device_id"`
	IsActive   bool      `json:"isActive" db:"is_active"`
	LastUsedAt time.Time `json:"lastUsedAt" db:"last_used_at"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
