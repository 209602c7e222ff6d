// internal/api/response.go
package api

import (
	"net/http"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/validation"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Response is the envelope of every API answer.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string                       `json:"code"`
	Message string                       `json:"message"`
	Details string                       `json:"details,omitempty"`
	Fields  []validation.ValidationError `json:"fields,omitempty"`
}

func success(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Success: true, Data: data})
}

// ErrorHandler is echo's HTTPErrorHandler for the API.
func ErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var fieldErrs *validation.FieldErrors
		if errors.As(err, &fieldErrs) {
			_ = c.JSON(http.StatusBadRequest, Response{Error: &ErrorInfo{
				Code:    string(apperrors.ErrCodeValidationFailed),
				Message: "Validation failed",
				Fields:  fieldErrs.Errors,
			}})
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			msg, ok := httpErr.Message.(string)
			if !ok {
				msg = http.StatusText(httpErr.Code)
			}
			_ = c.JSON(httpErr.Code, Response{Error: &ErrorInfo{Code: "HTTP_ERROR", Message: msg}})
			return
		}

		stdErr := apperrors.Normalize(err)
		status := apperrors.HTTPStatus(stdErr)
		info := &ErrorInfo{Code: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details}

		if status >= http.StatusInternalServerError {
			log.Error("request failed", map[string]interface{}{
				"error":  err.Error(),
				"path":   c.Request().URL.Path,
				"method": c.Request().Method,
			})
			info.Details = ""
		}
		_ = c.JSON(status, Response{Error: info})
	}
}
