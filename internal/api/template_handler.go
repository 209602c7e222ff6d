// internal/api/template_handler.go
package api

import (
	"context"
	"net/http"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"

	"github.com/labstack/echo/v4"
)

type Previewer interface {
	Preview(ctx context.Context, tenantID, templateID string, sample map[string]interface{}) (*models.RenderedContent, error)
}

type TemplateHandler struct {
	previewer Previewer
}

func NewTemplateHandler(p Previewer) *TemplateHandler {
	return &TemplateHandler{previewer: p}
}

type PreviewRequest struct {
	Data map[string]interface{} `json:"data"`
}

// Preview renders one of the caller's templates with sample data.
func (h *TemplateHandler) Preview(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.NewValidationError("invalid preview input")
	}

	id := identityFrom(c)
	out, err := h.previewer.Preview(c.Request().Context(), id.TenantID, c.Param("id"), req.Data)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, out)
}
