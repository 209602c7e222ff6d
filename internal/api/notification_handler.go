// internal/api/notification_handler.go
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/ingest"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

type Sender interface {
	Send(ctx context.Context, caller ingest.Caller, req *ingest.Request) ([]ingest.Result, error)
}

type NotificationReader interface {
	List(ctx context.Context, f models.NotificationFilter) (*models.NotificationPage, error)
	MarkRead(ctx context.Context, tenantID, appID, id string) (*models.Notification, error)
}

type NotificationHandler struct {
	sender Sender
	rows   NotificationReader
	logger logger.Logger
}

func NewNotificationHandler(sender Sender, rows NotificationReader, log logger.Logger) *NotificationHandler {
	return &NotificationHandler{sender: sender, rows: rows, logger: logger.Component(log, "notification-handler")}
}

// Send accepts a notification for asynchronous delivery on every requested channel.
func (h *NotificationHandler) Send(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return apperrors.NewValidationError("unreadable request body")
	}
	req, err := ingest.ParseRequest(raw)
	if err != nil {
		return err
	}

	results, err := h.sender.Send(c.Request().Context(), ingest.Caller{
		Identity: identityFrom(c),
		IP:       c.RealIP(),
	}, req)
	if err != nil {
		return err
	}
	return success(c, http.StatusAccepted, map[string]interface{}{"notifications": results})
}

type ListQuery struct {
	UserID  string `query:"userId" json:"userId" validate:"required"`
	Channel string `query:"channel" json:"channel" validate:"omitempty,oneof=EMAIL SMS PUSH IN_APP"`
	Status  string `query:"status" json:"status" validate:"omitempty,oneof=PENDING QUEUED SENT DELIVERED FAILED"`
	Limit   string `query:"limit" json:"limit"`
	Offset  string `query:"offset" json:"offset"`
}

// List returns a user's notifications, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	var q ListQuery
	if err := c.Bind(&q); err != nil {
		return apperrors.NewValidationError("invalid query parameters")
	}
	if err := c.Validate(&q); err != nil {
		return err
	}

	limit, err := intParam(q.Limit, models.DefaultListLimit)
	if err != nil {
		return apperrors.NewValidationError("limit must be an integer")
	}
	offset, err := intParam(q.Offset, 0)
	if err != nil {
		return apperrors.NewValidationError("offset must be an integer")
	}

	id := identityFrom(c)
	page, err := h.rows.List(c.Request().Context(), models.NotificationFilter{
		TenantID: id.TenantID,
		AppID:    id.AppID,
		UserID:   q.UserID,
		Channel:  models.Channel(q.Channel),
		Status:   models.DeliveryStatus(q.Status),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return apperrors.NewDatabaseError("list notifications", err)
	}
	return success(c, http.StatusOK, page)
}

// MarkRead stamps readAt once; repeated calls return the row unchanged.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id := identityFrom(c)
	n, err := h.rows.MarkRead(c.Request().Context(), id.TenantID, id.AppID, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewNotFoundError("Notification", c.Param("id"))
	}
	if err != nil {
		return apperrors.NewDatabaseError("mark notification read", err)
	}
	return success(c, http.StatusOK, map[string]interface{}{"notification": n})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
