// internal/store/credentials.go
package store

import (
	"context"
	"database/sql"
	"time"

	"notification-pipeline/internal/common/database"
	"notification-pipeline/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// ActiveFor returns the tenant's active credential for a channel, or nil when there is none.
func (s *CredentialStore) ActiveFor(ctx context.Context, tenantID string, channel models.Channel) (*models.Credential, error) {
	var (
		c  models.Credential
		ch string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, channel, provider, encrypted_config, is_active, created_at
		FROM credentials
		WHERE tenant_id = $1 AND channel = $2 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1`, tenantID, string(channel),
	).Scan(&c.ID, &c.TenantID, &ch, &c.Provider, &c.EncryptedConfig, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load active credential")
	}
	c.Channel = models.Channel(ch)
	return &c, nil
}

// ReplaceActive deactivates the current credential for (tenant, channel) and inserts c as
// the only active one. A transaction scoped advisory lock keeps concurrent rotations from
// different processes from interleaving.
func (s *CredentialStore) ReplaceActive(ctx context.Context, c *models.Credential) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.IsActive = true
	c.CreatedAt = time.Now().UTC()

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, c.TenantID+":"+string(c.Channel)); err != nil {
			return errors.Wrap(err, "lock credential slot")
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE credentials SET is_active = false
			WHERE tenant_id = $1 AND channel = $2 AND is_active = true`,
			c.TenantID, string(c.Channel)); err != nil {
			return errors.Wrap(err, "deactivate credentials")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (id, tenant_id, channel, provider, encrypted_config, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, true, $6)`,
			c.ID, c.TenantID, string(c.Channel), c.Provider, c.EncryptedConfig, c.CreatedAt); err != nil {
			return errors.Wrap(err, "insert credential")
		}
		return nil
	})
}
