// internal/api/middleware.go
package api

import (
	"context"
	"time"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"

	"github.com/labstack/echo/v4"
)

const (
	APIKeyHeader = "x-api-key"
	identityKey  = "identity"
)

// Authenticator verifies an application API key.
type Authenticator interface {
	Verify(ctx context.Context, raw string) (*models.Identity, error)
}

// APIKeyAuth rejects requests without a valid x-api-key header.
func APIKeyAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := auth.Verify(c.Request().Context(), c.Request().Header.Get(APIKeyHeader))
			if err != nil {
				return err
			}
			c.Set(identityKey, *id)
			return next(c)
		}
	}
}

func identityFrom(c echo.Context) models.Identity {
	id, _ := c.Get(identityKey).(models.Identity)
	return id
}

// RequestLogger logs one line per request.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := map[string]interface{}{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
				"ip":       c.RealIP(),
			}
			if id, ok := c.Get(identityKey).(models.Identity); ok {
				fields["tenantId"] = id.TenantID
				fields["appId"] = id.AppID
			}
			if c.Response().Status >= 500 {
				log.Error("request", fields)
			} else {
				log.Info("request", fields)
			}
			return nil
		}
	}
}
