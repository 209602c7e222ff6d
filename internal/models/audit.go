// internal/models/audit.go
package models

import "time"

const (
	AuditNotificationSent      = "NOTIFICATION_SENT"
	AuditPushTokenRegistered   = "PUSH_TOKEN_REGISTERED"
	AuditPushTokenUnregistered = "PUSH_TOKEN_UNREGISTERED"
	AuditCredentialRotated     = "CREDENTIAL_ROTATED"
)

type AuditEntry struct {
	TenantID   string                 `json:"tenantId,omitempty"`
	AppID      string                 `json:"appId,omitempty"`
	Action     string                 `json:"action"`
	Actor      string                 `json:"actor"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resourceId,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	IP         string                 `json:"ip,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}
