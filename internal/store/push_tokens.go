// internal/store/push_tokens.go
package store

import (
	"context"
	"database/sql"
	"time"

	"notification-pipeline/internal/common/database"
	"notification-pipeline/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

type PushTokenStore struct {
	db *sql.DB
}

func NewPushTokenStore(db *sql.DB) *PushTokenStore {
	return &PushTokenStore{db: db}
}

// ActiveFor lists the active device tokens of a user.
func (s *PushTokenStore) ActiveFor(ctx context.Context, tenantID, appID, userID string) ([]models.PushToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, app_id, user_id, token, platform, device_id, is_active, last_used_at, created_at
		FROM push_tokens
		WHERE tenant_id = $1 AND app_id = $2 AND user_id = $3 AND is_active = true`,
		tenantID, appID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query push tokens")
	}
	defer rows.Close()

	var out []models.PushToken
	for rows.Next() {
		var (
			t        models.PushToken
			platform string
			device   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.AppID, &t.UserID, &t.Token, &platform, &device,
			&t.IsActive, &t.LastUsedAt, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan push token")
		}
		t.Platform = models.Platform(platform)
		t.DeviceID = device.String
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate push tokens")
}

// Register upserts the token on (tenant, app, token) and reactivates it. With a device id,
// other active tokens of the same user device are deactivated.
func (s *PushTokenStore) Register(ctx context.Context, t *models.PushToken) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO push_tokens (id, tenant_id, app_id, user_id, token, platform, device_id, is_active, last_used_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $8)
			ON CONFLICT (tenant_id, app_id, token) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				platform = EXCLUDED.platform,
				device_id = EXCLUDED.device_id,
				is_active = true,
				last_used_at = EXCLUDED.last_used_at
			RETURNING id, created_at`,
			t.ID, t.TenantID, t.AppID, t.UserID, t.Token, string(t.Platform), nullString(t.DeviceID), now,
		).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "upsert push token")
		}
		t.IsActive = true
		t.LastUsedAt = now

		if t.DeviceID == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE push_tokens SET is_active = false
			WHERE tenant_id = $1 AND app_id = $2 AND user_id = $3 AND device_id = $4
			  AND token <> $5 AND is_active = true`,
			t.TenantID, t.AppID, t.UserID, t.DeviceID, t.Token); err != nil {
			return errors.Wrap(err, "deactivate sibling tokens")
		}
		return nil
	})
}

// Unregister deactivates an active token. ErrNotFound when it is unknown or already inactive.
func (s *PushTokenStore) Unregister(ctx context.Context, tenantID, appID, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE push_tokens SET is_active = false
		WHERE tenant_id = $1 AND app_id = $2 AND token = $3 AND is_active = true`,
		tenantID, appID, token)
	if err != nil {
		return errors.Wrap(err, "unregister push token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.WithStack(ErrNotFound)
	}
	return nil
}

// Deactivate switches off tokens the provider rejected permanently.
func (s *PushTokenStore) Deactivate(ctx context.Context, tenantID, appID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE push_tokens SET is_active = false
		WHERE tenant_id = $1 AND app_id = $2 AND token = ANY($3)`,
		tenantID, appID, pq.Array(tokens))
	return errors.Wrap(err, "deactivate push tokens")
}

// Touch refreshes last_used_at for tokens that accepted a message.
func (s *PushTokenStore) Touch(ctx context.Context, tenantID, appID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE push_tokens SET last_used_at = NOW()
		WHERE tenant_id = $1 AND app_id = $2 AND token = ANY($3)`,
		tenantID, appID, pq.Array(tokens))
	return errors.Wrap(err, "touch push tokens")
}
