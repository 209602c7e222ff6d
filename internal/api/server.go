// internal/api/server.go
package api

import (
	"context"
	"net/http"

	"notification-pipeline/internal/audit"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/validation"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators behind the HTTP surface.
type Dependencies struct {
	Auth          Authenticator
	Sender        Sender
	Notifications NotificationReader
	PushTokens    PushTokenWriter
	Templates     Previewer
	Audit         audit.Sink
	// Realtime serves the websocket endpoint. Nil leaves /ws unmounted.
	Realtime http.Handler
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// NewServer builds the echo instance with every route mounted.
func NewServer(deps Dependencies, log logger.Logger) *echo.Echo {
	log = logger.Component(log, "api")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.NewStructValidator()
	e.HTTPErrorHandler = ErrorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(log))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if deps.Realtime != nil {
		e.GET("/ws", echo.WrapHandler(deps.Realtime))
	}

	auth := APIKeyAuth(deps.Auth)

	notifications := NewNotificationHandler(deps.Sender, deps.Notifications, log)
	n := e.Group("/api/notifications", auth)
	n.POST("/send", notifications.Send)
	n.GET("", notifications.List)
	n.PATCH("/:id/read", notifications.MarkRead)

	tokens := NewPushTokenHandler(deps.PushTokens, deps.Audit)
	p := e.Group("/api/push-tokens", auth)
	p.POST("/register", tokens.Register)
	p.POST("/unregister", tokens.Unregister)

	if deps.Templates != nil {
		templates := NewTemplateHandler(deps.Templates)
		e.POST("/api/templates/:id/preview", templates.Preview, auth)
	}

	return e
}
