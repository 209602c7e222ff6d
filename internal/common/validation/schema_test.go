package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJob(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{
			name:  "complete email job",
			raw:   `{"notificationId":"n1","tenantId":"t1","appId":"a1","event":"INVOICE_CREATED","channel":"EMAIL","userId":"u1","userEmail":"a@b.com","data":{}}`,
			valid: true,
		},
		{
			name:  "unknown channel",
			raw:   `{"notificationId":"n1","tenantId":"t1","appId":"a1","event":"E","channel":"FAX","userId":"u1"}`,
			valid: false,
		},
		{
			name:  "missing tenant",
			raw:   `{"notificationId":"n1","appId":"a1","event":"E","channel":"SMS","userId":"u1"}`,
			valid: false,
		},
		{
			name:  "malformed json",
			raw:   `{"notificationId":`,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateJob([]byte(tt.raw))
			assert.Equal(t, tt.valid, result.Valid, "%v", result.Errors)
			if !tt.valid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestValidateIngest_RejectsReservedDataKeys(t *testing.T) {
	for _, key := range []string{"html", "emailHtml", "template"} {
		t.Run(key, func(t *testing.T) {
			raw := `{"event":"E","channels":["IN_APP"],"user":{"id":"u1"},"data":{"` + key + `":"x"}}`
			result := ValidateIngest([]byte(raw))
			assert.False(t, result.Valid)
		})
	}

	ok := ValidateIngest([]byte(`{"event":"E","channels":["IN_APP"],"user":{"id":"u1"},"data":{"amount":10}}`))
	assert.True(t, ok.Valid, "%v", ok.Errors)
}

func TestValidateIngest_Limits(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'x'
	}
	result := ValidateIngest([]byte(`{"event":"E","channels":["IN_APP"],"user":{"id":"u1"},"title":"` + string(long) + `"}`))
	require.False(t, result.Valid)
	assert.Equal(t, "title", result.Errors[0].Field)

	empty := ValidateIngest([]byte(`{"event":"E","channels":[],"user":{"id":"u1"}}`))
	assert.False(t, empty.Valid)
}

func TestFormatValidationErrors(t *testing.T) {
	assert.Equal(t, "", FormatValidationErrors(nil))
	msg := FormatValidationErrors([]ValidationError{
		{Field: "event", Message: "is required"},
		{Field: "channels", Message: "must not be empty"},
	})
	assert.Equal(t, "validation failed: event: is required; channels: must not be empty", msg)
}

type registerRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=android ios web"`
}

func TestStructValidator(t *testing.T) {
	v := NewStructValidator()

	require.NoError(t, v.Validate(&registerRequest{Token: "tok", Platform: "ios"}))

	err := v.Validate(&registerRequest{Platform: "blackberry"})
	require.Error(t, err)

	var fe *FieldErrors
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe.Errors, 2)
	assert.Equal(t, "token", fe.Errors[0].Field)
	assert.Equal(t, "REQUIRED", fe.Errors[0].Code)
	assert.Equal(t, "platform", fe.Errors[1].Field)
	assert.Contains(t, fe.Errors[1].Message, "android ios web")
}
