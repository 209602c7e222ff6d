// internal/api/push_token_handler.go
package api

import (
	"context"
	"net/http"
	"time"

	"notification-pipeline/internal/audit"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type PushTokenWriter interface {
	Register(ctx context.Context, t *models.PushToken) error
	Unregister(ctx context.Context, tenantID, appID, token string) error
}

type PushTokenHandler struct {
	tokens PushTokenWriter
	audit  audit.Sink
}

func NewPushTokenHandler(tokens PushTokenWriter, sink audit.Sink) *PushTokenHandler {
	return &PushTokenHandler{tokens: tokens, audit: sink}
}

type RegisterTokenRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=android ios web"`
	DeviceID string `json:"deviceId"`
}

type UnregisterTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// Register upserts a device token for a user.
func (h *PushTokenHandler) Register(c echo.Context) error {
	var req RegisterTokenRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.NewValidationError("invalid push token input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id := identityFrom(c)
	token := &models.PushToken{
		TenantID: id.TenantID,
		AppID:    id.AppID,
		UserID:   req.UserID,
		Token:    req.Token,
		Platform: models.Platform(req.Platform),
		DeviceID: req.DeviceID,
	}
	if err := h.tokens.Register(c.Request().Context(), token); err != nil {
		return apperrors.NewDatabaseError("register push token", err)
	}

	h.audit.Record(c.Request().Context(), models.AuditEntry{
		TenantID:   id.TenantID,
		AppID:      id.AppID,
		Action:     models.AuditPushTokenRegistered,
		Actor:      id.Actor(),
		Resource:   "PushToken",
		ResourceID: token.ID,
		Details:    map[string]interface{}{"userId": req.UserID, "platform": req.Platform},
		IP:         c.RealIP(),
		CreatedAt:  time.Now().UTC(),
	})

	return success(c, http.StatusOK, map[string]interface{}{
		"id":       token.ID,
		"userId":   token.UserID,
		"platform": token.Platform,
		"isActive": token.IsActive,
	})
}

// Unregister deactivates a device token, typically on logout.
func (h *PushTokenHandler) Unregister(c echo.Context) error {
	var req UnregisterTokenRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.NewValidationError("invalid push token input")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id := identityFrom(c)
	err := h.tokens.Unregister(c.Request().Context(), id.TenantID, id.AppID, req.Token)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NewNotFoundError("Push token", "token not found or already inactive")
	}
	if err != nil {
		return apperrors.NewDatabaseError("unregister push token", err)
	}

	h.audit.Record(c.Request().Context(), models.AuditEntry{
		TenantID:  id.TenantID,
		AppID:     id.AppID,
		Action:    models.AuditPushTokenUnregistered,
		Actor:     id.Actor(),
		Resource:  "PushToken",
		IP:        c.RealIP(),
		CreatedAt: time.Now().UTC(),
	})

	return c.JSON(http.StatusOK, Response{Success: true, Message: "Token deactivated"})
}
