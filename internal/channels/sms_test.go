package channels

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsclient "notification-pipeline/internal/common/aws"
	apperrors "notification-pipeline/internal/common/errors"
	commonhttp "notification-pipeline/internal/common/http"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
)

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func newGateway(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.header = r.Header.Clone()
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func testHTTPClient() *commonhttp.Client {
	return commonhttp.NewClient(5 * time.Second)
}

func TestTwilioProvider(t *testing.T) {
	srv, got := newGateway(t, http.StatusCreated, `{"sid":"SM1"}`)
	p := NewTwilioProvider(testHTTPClient(), srv.URL)

	err := p.Send(context.Background(), "+15550001", "hello", map[string]interface{}{
		"accountSid": "AC123", "authToken": "secret", "fromNumber": "+15559999",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", got.path)
	user, pass, ok := (&http.Request{Header: got.header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "secret", pass)

	form, err := url.ParseQuery(string(got.body))
	require.NoError(t, err)
	assert.Equal(t, "+15550001", form.Get("To"))
	assert.Equal(t, "+15559999", form.Get("From"))
	assert.Equal(t, "hello", form.Get("Body"))
}

func TestTwilioProvider_MissingFields(t *testing.T) {
	p := NewTwilioProvider(testHTTPClient(), "http://unused")

	err := p.Send(context.Background(), "+1", "x", map[string]interface{}{"accountSid": "AC1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "authToken, fromNumber")
}

func TestMsg91Provider(t *testing.T) {
	srv, got := newGateway(t, http.StatusOK, `{"type":"success"}`)
	p := NewMsg91Provider(testHTTPClient(), srv.URL)

	err := p.Send(context.Background(), "919800000000", "otp 1234", map[string]interface{}{
		"authKey": "k1", "senderId": "ACME", "route": "4",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v5/flow/", got.path)
	assert.Equal(t, "k1", got.header.Get("authkey"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, map[string]string{"sender": "ACME", "route": "4", "mobiles": "919800000000", "body": "otp 1234"}, body)
}

func TestVonageProvider(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		srv, got := newGateway(t, http.StatusOK, `{"messages":[{"status":"0"}]}`)
		p := NewVonageProvider(testHTTPClient(), srv.URL)

		err := p.Send(context.Background(), "447700900000", "hi", map[string]interface{}{
			"apiKey": "k", "apiSecret": "s", "fromNumber": "ACME",
		})
		require.NoError(t, err)
		assert.Equal(t, "/sms/json", got.path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(got.body, &body))
		assert.Equal(t, "k", body["api_key"])
		assert.Equal(t, "hi", body["text"])
	})

	t.Run("rejected in body", func(t *testing.T) {
		srv, _ := newGateway(t, http.StatusOK, `{"messages":[{"status":"4","error-text":"Bad Credentials"}]}`)
		p := NewVonageProvider(testHTTPClient(), srv.URL)

		err := p.Send(context.Background(), "1", "hi", map[string]interface{}{"apiKey": "k", "apiSecret": "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Bad Credentials")
	})
}

func TestTextlocalProvider(t *testing.T) {
	srv, got := newGateway(t, http.StatusOK, `{"status":"success"}`)
	p := NewTextlocalProvider(testHTTPClient(), srv.URL)

	err := p.Send(context.Background(), "447700900000", "hi", map[string]interface{}{"apiKey": "k", "sender": "ACME"})
	require.NoError(t, err)

	assert.Equal(t, "/send/", got.path)
	form, err := url.ParseQuery(string(got.body))
	require.NoError(t, err)
	assert.Equal(t, "k", form.Get("apikey"))
	assert.Equal(t, "447700900000", form.Get("numbers"))
	assert.Equal(t, "hi", form.Get("message"))
}

func TestCustomWebhookProvider(t *testing.T) {
	srv, got := newGateway(t, http.StatusAccepted, ``)
	p := NewCustomWebhookProvider(testHTTPClient())

	err := p.Send(context.Background(), "+1", "hi", map[string]interface{}{
		"webhookUrl": srv.URL + "/hook",
		"method":     "put",
		"headers":    map[string]interface{}{"X-Token": "abc"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/hook", got.path)
	assert.Equal(t, "abc", got.header.Get("X-Token"))
	assert.JSONEq(t, `{"to":"+1","body":"hi"}`, string(got.body))

	err = p.Send(context.Background(), "+1", "hi", map[string]interface{}{"webhookUrl": srv.URL, "method": "DELETE"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
}

type mockSNS struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func TestSNSProvider(t *testing.T) {
	var gotCreds awsclient.StaticCredentials
	var input *sns.PublishInput
	factory := func(_ context.Context, creds awsclient.StaticCredentials, region string) (awsclient.SNSAPI, error) {
		gotCreds = creds
		assert.Equal(t, "us-east-1", region)
		return &mockSNS{PublishFunc: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			input = params
			return &sns.PublishOutput{MessageId: aws.String("m1")}, nil
		}}, nil
	}
	p := NewSNSProvider(factory, "us-east-1")

	err := p.Send(context.Background(), "+15550001", "hi", map[string]interface{}{
		"accessKeyId": "AKIA", "secretAccessKey": "s", "senderId": "ACME",
	})
	require.NoError(t, err)

	assert.Equal(t, "AKIA", gotCreds.AccessKeyID)
	assert.Equal(t, "+15550001", aws.ToString(input.PhoneNumber))
	assert.Equal(t, "hi", aws.ToString(input.Message))
	assert.Equal(t, "ACME", aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
	assert.Equal(t, "Transactional", aws.ToString(input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
}

func TestSMSDispatcher_Send(t *testing.T) {
	srv, got := newGateway(t, http.StatusCreated, `{}`)
	creds := &mockResolver{ResolveFunc: func(_ context.Context, tenantID string, channel models.Channel) (*models.DecryptedConfig, error) {
		assert.Equal(t, models.ChannelSMS, channel)
		return &models.DecryptedConfig{Provider: "Twilio", Values: map[string]interface{}{
			"accountSid": "AC1", "authToken": "t", "fromNumber": "+1999",
		}}, nil
	}}
	d := NewSMSDispatcher(creds, logger.NewTestLogger(t), NewTwilioProvider(testHTTPClient(), srv.URL))

	out, err := d.Send(context.Background(), Message{NotificationID: "n1", TenantID: "t1", Mobile: "+1555", Body: "code 1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, out.Status)
	assert.Equal(t, ProviderTwilio, out.Provider)
	assert.Contains(t, string(got.body), "Body=code+1")
}

func TestSMSDispatcher_Errors(t *testing.T) {
	log := logger.NewTestLogger(t)
	resolveTo := func(provider string, values map[string]interface{}) *mockResolver {
		return &mockResolver{ResolveFunc: func(context.Context, string, models.Channel) (*models.DecryptedConfig, error) {
			return &models.DecryptedConfig{Provider: provider, Values: values}, nil
		}}
	}

	t.Run("missing mobile", func(t *testing.T) {
		d := NewSMSDispatcher(resolveTo(ProviderTwilio, nil), log)
		_, err := d.Send(context.Background(), Message{TenantID: "t1"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
	})

	t.Run("unknown provider", func(t *testing.T) {
		d := NewSMSDispatcher(resolveTo("carrier-pigeon", nil), log, DefaultSMSProviders(testHTTPClient(), nil, "")...)
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Mobile: "+1"})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
		assert.False(t, apperrors.IsRetryable(err))
	})

	t.Run("gateway 5xx retries", func(t *testing.T) {
		srv, _ := newGateway(t, http.StatusBadGateway, `oops`)
		d := NewSMSDispatcher(resolveTo(ProviderTextlocal, map[string]interface{}{"apiKey": "k"}), log,
			NewTextlocalProvider(testHTTPClient(), srv.URL))
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Mobile: "+1"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProvider))
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("gateway 401 is configuration", func(t *testing.T) {
		srv, _ := newGateway(t, http.StatusUnauthorized, `denied`)
		d := NewSMSDispatcher(resolveTo(ProviderTextlocal, map[string]interface{}{"apiKey": "k"}), log,
			NewTextlocalProvider(testHTTPClient(), srv.URL))
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Mobile: "+1"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
	})

	t.Run("credential error passes through", func(t *testing.T) {
		creds := &mockResolver{ResolveFunc: func(context.Context, string, models.Channel) (*models.DecryptedConfig, error) {
			return nil, apperrors.NewMissingCredentialError("t1", "SMS")
		}}
		d := NewSMSDispatcher(creds, log)
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Mobile: "+1"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
	})

	t.Run("sns failure retries", func(t *testing.T) {
		factory := func(context.Context, awsclient.StaticCredentials, string) (awsclient.SNSAPI, error) {
			return &mockSNS{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
				return nil, errors.New("throttled")
			}}, nil
		}
		d := NewSMSDispatcher(resolveTo(ProviderSNS, map[string]interface{}{}), log, NewSNSProvider(factory, "eu-west-1"))
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Mobile: "+1"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProvider))
	})
}
