// internal/models/credential.go
package models

import "time"

// Credential is a tenant's provider configuration for one channel.
// EncryptedConfig holds iv:tag:ciphertext and is never decrypted at rest.
type Credential struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"tenantId" db:"tenant_id"`
	Channel         Channel   `json:"channel" db:"channel"`
	Provider        string    `json:"provider" db:"provider"`
	EncryptedConfig string    `json:"-" db:"encrypted_config"`
	IsActive        bool      `json:"isActive" db:"is_active"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// DecryptedConfig is a resolved credential ready for a provider adapter.
type DecryptedConfig struct {
	CredentialID string
	Provider     string
	Values       map[string]interface{}
}
