package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ map[string]interface{})  { l.warns = append(l.warns, msg) }

// ==========================
// Taxonomy
// ==========================

func TestConstructors_Retryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
	}{
		{"auth", NewAuthError("bad key"), ErrCodeAuthFailed, false},
		{"validation", NewValidationError("missing email"), ErrCodeValidationFailed, false},
		{"configuration", NewConfigurationError("bad key", nil), ErrCodeConfiguration, false},
		{"missing credential", NewMissingCredentialError("t1", "EMAIL"), ErrCodeConfiguration, false},
		{"unknown provider", NewUnknownProviderError("SMS", "pigeon"), ErrCodeConfiguration, false},
		{"provider", NewProviderError("twilio", fmt.Errorf("503")), ErrCodeProvider, true},
		{"permanent token", NewPermanentTokenError("tok", nil), ErrCodePermanentToken, false},
		{"database", NewDatabaseError("insert", fmt.Errorf("conn reset")), ErrCodeDatabase, true},
		{"not found", NewNotFoundError("Notification", "id=1"), ErrCodeNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestIsRetryable_WrappedAndForeign(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", NewUnknownProviderError("SMS", "x"))
	assert.False(t, IsRetryable(wrapped))
	assert.Equal(t, ErrCodeConfiguration, CodeOf(wrapped))

	foreign := stderrors.New("socket hang up")
	assert.True(t, IsRetryable(foreign))
	assert.Equal(t, ErrCodeInternal, CodeOf(foreign))
	assert.False(t, IsRetryable(nil))
}

func TestProviderError_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("timeout")
	err := NewProviderError("smtp", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "smtp", err.Metadata["provider"])
	assert.Contains(t, err.Error(), "timeout")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(NewAuthError("")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewValidationError("")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFoundError("x", "")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("x")))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeAuthFailed))
	assert.Equal(t, "CONFIGURATION", GetErrorCategory(ErrCodeConfiguration))
	assert.Equal(t, "DELIVERY", GetErrorCategory(ErrCodeProvider))
	assert.Equal(t, "DELIVERY", GetErrorCategory(ErrCodePermanentToken))
	assert.Equal(t, "INFRASTRUCTURE", GetErrorCategory(ErrCodeQueue))
	assert.Equal(t, 3, GetRetryCount(ErrCodeProvider))
	assert.Equal(t, 0, GetRetryCount(ErrCodeConfiguration))
}

// ==========================
// ErrorHandler
// ==========================

func TestErrorHandler_HandleJobError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		attempt   int
		wantRetry bool
	}{
		{"provider error first attempt", NewProviderError("fcm", stderrors.New("unavailable")), 1, true},
		{"provider error last attempt", NewProviderError("fcm", stderrors.New("unavailable")), 3, false},
		{"configuration error never retried", NewMissingCredentialError("t", "SMS"), 1, false},
		{"unexpected error retried", stderrors.New("boom"), 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			h := NewErrorHandler(log)

			d := h.HandleJobError(JobRef{ID: "1", Name: "E:SMS", Attempt: tt.attempt, MaxAttempts: 3}, tt.err)

			require.NotNil(t, d.Err)
			assert.Equal(t, tt.wantRetry, d.Retry)
			if tt.wantRetry {
				assert.Len(t, log.warns, 1)
			} else {
				assert.Len(t, log.errors, 1)
			}
		})
	}
}
