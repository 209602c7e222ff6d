// Package errors provides the standardized error taxonomy of the delivery pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Rejected requests, never retried.
	ErrCodeAuthFailed       ErrorCode = "AUTH_FAILED"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound         ErrorCode = "RESOURCE_NOT_FOUND"

	// Tenant setup problems: missing or undecryptable credential, unknown provider.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// Upstream delivery failures.
	ErrCodeProvider       ErrorCode = "PROVIDER_ERROR"
	ErrCodePermanentToken ErrorCode = "PERMANENT_TOKEN"

	// Infrastructure.
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error metadata and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewAuthError rejects a bad, unknown or revoked credential.
func NewAuthError(details string) *StandardError {
	return newError(ErrCodeAuthFailed, "Authentication failed", details, false, nil)
}

// NewValidationError rejects a malformed request or job.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", details, false, nil)
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), details, false, nil)
}

// NewConfigurationError reports a tenant setup problem that retrying cannot fix.
func NewConfigurationError(details string, cause error) *StandardError {
	return newError(ErrCodeConfiguration, "Tenant configuration error", details, false, cause)
}

// NewMissingCredentialError is returned when a tenant has no active credential for a channel.
func NewMissingCredentialError(tenantID, channel string) *StandardError {
	return NewConfigurationError(
		fmt.Sprintf("no active %s credential for tenant %s", channel, tenantID), nil,
	).WithMetadata("tenantId", tenantID).WithMetadata("channel", channel)
}

// NewUnknownProviderError is returned when a credential names a provider with no adapter.
func NewUnknownProviderError(channel, provider string) *StandardError {
	return NewConfigurationError(
		fmt.Sprintf("unsupported %s provider: %s", channel, provider), nil,
	).WithMetadata("provider", provider)
}

// NewProviderError wraps a transient upstream failure; the job is retried.
func NewProviderError(provider string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodeProvider, fmt.Sprintf("Provider '%s' delivery failed", provider), details, true, err).
		WithMetadata("provider", provider)
}

// NewPermanentTokenError marks a device token the push provider will never accept again.
func NewPermanentTokenError(token string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodePermanentToken, "Device token is permanently invalid", details, false, err).
		WithMetadata("token", token)
}

// NewDatabaseError wraps a store failure.
func NewDatabaseError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabase, fmt.Sprintf("Database operation '%s' failed", operation), err.Error(), true, err)
}

// NewQueueError wraps a job queue failure.
func NewQueueError(operation string, err error) *StandardError {
	return newError(ErrCodeQueue, fmt.Sprintf("Queue operation '%s' failed", operation), err.Error(), true, err)
}

// NewInternalError wraps anything unexpected.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), true, err)
}

// ==========================
// 3. Utility Functions
// ==========================

// As extracts a *StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of a standard error, INTERNAL_ERROR for anything else.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the queue should try the job again.
// Errors outside the taxonomy are unexpected and therefore retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stdErr, ok := As(err); ok {
		return stdErr.Retryable
	}
	return true
}

// Normalize turns any error into a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// GetRetryCount returns the recommended number of retries per code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProvider, ErrCodeDatabase, ErrCodeQueue, ErrCodeInternal:
		return 3
	default:
		return 0
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AUTH"):
		return "AUTH"
	case strings.Contains(codeStr, "VALIDATION"), strings.Contains(codeStr, "NOT_FOUND"):
		return "REQUEST"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "PROVIDER"), strings.Contains(codeStr, "TOKEN"):
		return "DELIVERY"
	case strings.Contains(codeStr, "DATABASE"), strings.Contains(codeStr, "QUEUE"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error to the status the ingest API answers with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
