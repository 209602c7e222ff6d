// internal/channels/inapp.go
package channels

import (
	"context"
	"errors"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"
)

// RealtimeEventName is the event name clients receive for in-app notifications.
const RealtimeEventName = "notification"

type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) error
}

// Emitter delivers an event to the room of one user.
type Emitter interface {
	Emit(ctx context.Context, tenantID, appID, userID, event string, data interface{}) error
}

// InAppDispatcher persists the rendered content and then pushes it to live connections.
type InAppDispatcher struct {
	rows   StatusWriter
	fanout Emitter
	logger logger.Logger
	now    func() time.Time
}

func NewInAppDispatcher(rows StatusWriter, fanout Emitter, log logger.Logger) *InAppDispatcher {
	return &InAppDispatcher{
		rows:   rows,
		fanout: fanout,
		logger: logger.Component(log, "inapp-dispatcher"),
		now:    time.Now,
	}
}

func (d *InAppDispatcher) Channel() models.Channel { return models.ChannelInApp }

func (d *InAppDispatcher) Send(ctx context.Context, msg Message) (*Outcome, error) {
	now := d.now()
	subject, body := msg.Subject, msg.Body
	err := d.rows.UpdateStatus(ctx, msg.NotificationID, models.StatusUpdate{
		Status:          models.StatusDelivered,
		RenderedSubject: &subject,
		RenderedBody:    &body,
		SentAt:          &now,
	})
	if errors.Is(err, store.ErrStaleTransition) {
		d.logger.Info("notification already delivered", map[string]interface{}{"notificationId": msg.NotificationID})
		return &Outcome{Status: models.StatusDelivered, Provider: "realtime", Persisted: true}, nil
	}
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewDatabaseError("update notification", err)
		}
		return nil, err
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	event := map[string]interface{}{
		"id":        msg.NotificationID,
		"event":     msg.Event,
		"subject":   subject,
		"body":      body,
		"data":      msg.Data,
		"createdAt": createdAt,
	}
	if err := d.fanout.Emit(ctx, msg.TenantID, msg.AppID, msg.UserID, RealtimeEventName, event); err != nil {
		d.logger.Warn("realtime emit failed", map[string]interface{}{
			"notificationId": msg.NotificationID,
			"error":          err.Error(),
		})
	}
	recordOutcome(models.ChannelInApp, "realtime", nil)

	return &Outcome{Status: models.StatusDelivered, Provider: "realtime", Succeeded: 1, Persisted: true}, nil
}
