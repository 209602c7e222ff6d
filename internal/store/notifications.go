// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"notification-pipeline/internal/common/database"
	"notification-pipeline/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const notificationColumns = `id, tenant_id, app_id, event, channel, user_id, user_email, user_mobile, data,
	status, error, rendered_subject, rendered_body, sent_at, read_at, created_at, updated_at`

// NotificationStore persists notification rows in PostgreSQL.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// CreateMany inserts all rows in one transaction. Missing ids and timestamps are filled in.
func (s *NotificationStore) CreateMany(ctx context.Context, rows []*models.Notification) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, n := range rows {
			if n.ID == "" {
				n.ID = uuid.New().String()
			}
			if n.Status == "" {
				n.Status = models.StatusPending
			}
			now := time.Now().UTC()
			n.CreatedAt, n.UpdatedAt = now, now

			data, err := encodeJSON(n.Data)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO notifications (
					id, tenant_id, app_id, event, channel, user_id, user_email, user_mobile,
					data, status, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
				n.ID, n.TenantID, n.AppID, n.Event, string(n.Channel), n.UserID,
				nullString(n.UserEmail), nullString(n.UserMobile), data, string(n.Status), now,
			)
			if err != nil {
				return errors.Wrapf(err, "insert notification %s", n.ID)
			}
		}
		return nil
	})
}

// Get loads one notification scoped to a tenant and app.
func (s *NotificationStore) Get(ctx context.Context, tenantID, appID, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1 AND tenant_id = $2 AND app_id = $3`, id, tenantID, appID)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithStack(ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get notification")
	}
	return n, nil
}

// UpdateStatus writes a status change and the worker-owned result fields.
// A nil field leaves the column as is; an empty Error clears it.
func (s *NotificationStore) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	from := sourcesFor(upd.Status)

	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET
			status = $2,
			error = CASE WHEN $3::text IS NULL THEN error WHEN $3::text = '' THEN NULL ELSE $3::text END,
			rendered_subject = COALESCE($4, rendered_subject),
			rendered_body = COALESCE($5, rendered_body),
			sent_at = COALESCE($6, sent_at),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($7)`,
		id, string(upd.Status), ptrArg(upd.Error), ptrArg(upd.RenderedSubject),
		ptrArg(upd.RenderedBody), timeArg(upd.SentAt), pq.Array(from),
	)
	if err != nil {
		return errors.Wrapf(err, "update status of %s", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(ErrStaleTransition, "notification %s to %s", id, upd.Status)
	}
	return nil
}

func sourcesFor(to models.DeliveryStatus) []string {
	var out []string
	for _, from := range []models.DeliveryStatus{
		models.StatusPending, models.StatusQueued, models.StatusSent, models.StatusDelivered, models.StatusFailed,
	} {
		if models.CanTransition(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}

// List returns a page of a user's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, f models.NotificationFilter) (*models.NotificationPage, error) {
	f.Normalize()

	where := []string{"tenant_id = $1", "app_id = $2", "user_id = $3"}
	args := []interface{}{f.TenantID, f.AppID, f.UserID}
	if f.Channel != "" {
		args = append(args, string(f.Channel))
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	page := &models.NotificationPage{Limit: f.Limit, Offset: f.Offset, Notifications: []models.Notification{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return nil, errors.Wrap(err, "count notifications")
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE tenant_id = $1 AND app_id = $2 AND user_id = $3 AND channel = 'IN_APP' AND read_at IS NULL`,
		f.TenantID, f.AppID, f.UserID,
	).Scan(&page.UnreadCount); err != nil {
		return nil, errors.Wrap(err, "count unread")
	}

	listArgs := append(append([]interface{}{}, args...), f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)+1, len(args)+2), listArgs...)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		page.Notifications = append(page.Notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate notifications")
	}
	return page, nil
}

// MarkRead sets read_at once. Later calls return the row with the original timestamp.
func (s *NotificationStore) MarkRead(ctx context.Context, tenantID, appID, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND tenant_id = $2 AND app_id = $3
		RETURNING `+notificationColumns, id, tenantID, appID)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithStack(ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mark read")
	}
	return n, nil
}

// PurgeOlderThan deletes rows created before cutoff and returns how many went.
func (s *NotificationStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "purge notifications")
	}
	return res.RowsAffected()
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n                                    models.Notification
		channel, status                      string
		email, mobile, errMsg, subject, body sql.NullString
		data                                 []byte
		sentAt, readAt                       sql.NullTime
	)
	err := row.Scan(
		&n.ID, &n.TenantID, &n.AppID, &n.Event, &channel, &n.UserID, &email, &mobile, &data,
		&status, &errMsg, &subject, &body, &sentAt, &readAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Channel = models.Channel(channel)
	n.Status = models.DeliveryStatus(status)
	n.UserEmail = email.String
	n.UserMobile = mobile.String
	n.Error = errMsg.String
	n.RenderedSubject = subject.String
	n.RenderedBody = body.String
	n.SentAt = nullTimePtr(sentAt)
	n.ReadAt = nullTimePtr(readAt)

	if n.Data, err = decodeJSON(data); err != nil {
		return nil, err
	}
	return &n, nil
}
