package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/ingest"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"
)

const goodKey = "ns_skc_0123456789abcdef0123456789abcdef01234567"

type mockAuth struct{}

func (mockAuth) Verify(_ context.Context, raw string) (*models.Identity, error) {
	if raw != goodKey {
		return nil, apperrors.NewAuthError("Invalid API key")
	}
	return &models.Identity{TenantID: "t-1", AppID: "a-1", KeyPrefix: goodKey[:12]}, nil
}

type mockSender struct {
	SendFunc func(ctx context.Context, caller ingest.Caller, req *ingest.Request) ([]ingest.Result, error)
}

func (m *mockSender) Send(ctx context.Context, caller ingest.Caller, req *ingest.Request) ([]ingest.Result, error) {
	return m.SendFunc(ctx, caller, req)
}

type mockReader struct {
	ListFunc     func(ctx context.Context, f models.NotificationFilter) (*models.NotificationPage, error)
	MarkReadFunc func(ctx context.Context, tenantID, appID, id string) (*models.Notification, error)
}

func (m *mockReader) List(ctx context.Context, f models.NotificationFilter) (*models.NotificationPage, error) {
	return m.ListFunc(ctx, f)
}

func (m *mockReader) MarkRead(ctx context.Context, tenantID, appID, id string) (*models.Notification, error) {
	return m.MarkReadFunc(ctx, tenantID, appID, id)
}

type mockTokens struct {
	RegisterFunc   func(ctx context.Context, t *models.PushToken) error
	UnregisterFunc func(ctx context.Context, tenantID, appID, token string) error
}

func (m *mockTokens) Register(ctx context.Context, t *models.PushToken) error {
	return m.RegisterFunc(ctx, t)
}

func (m *mockTokens) Unregister(ctx context.Context, tenantID, appID, token string) error {
	return m.UnregisterFunc(ctx, tenantID, appID, token)
}

type mockPreviewer struct {
	PreviewFunc func(ctx context.Context, tenantID, templateID string, sample map[string]interface{}) (*models.RenderedContent, error)
}

func (m *mockPreviewer) Preview(ctx context.Context, tenantID, templateID string, sample map[string]interface{}) (*models.RenderedContent, error) {
	return m.PreviewFunc(ctx, tenantID, templateID, sample)
}

type mockSink struct {
	entries []models.AuditEntry
}

func (m *mockSink) Record(_ context.Context, entry models.AuditEntry) {
	m.entries = append(m.entries, entry)
}

type harness struct {
	sender    *mockSender
	reader    *mockReader
	tokens    *mockTokens
	previewer *mockPreviewer
	sink      *mockSink
	deps      Dependencies
}

func newHarness() *harness {
	h := &harness{
		sender:    &mockSender{},
		reader:    &mockReader{},
		tokens:    &mockTokens{},
		previewer: &mockPreviewer{},
		sink:      &mockSink{},
	}
	h.deps = Dependencies{
		Auth:          mockAuth{},
		Sender:        h.sender,
		Notifications: h.reader,
		PushTokens:    h.tokens,
		Templates:     h.previewer,
		Audit:         h.sink,
	}
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, authed bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	srv := NewServer(h.deps, logger.NewTestLogger(t))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set(APIKeyHeader, goodKey)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "no error object in %v", body)
	return e["code"].(string)
}

func TestAuth_RejectsMissingAndBadKeys(t *testing.T) {
	h := newHarness()

	rec, body := h.do(t, http.MethodGet, "/api/notifications?userId=u1", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_FAILED", errorCode(t, body))
	assert.Equal(t, false, body["success"])
}

func TestSend_Accepted(t *testing.T) {
	h := newHarness()
	h.sender.SendFunc = func(_ context.Context, caller ingest.Caller, req *ingest.Request) ([]ingest.Result, error) {
		assert.Equal(t, "t-1", caller.Identity.TenantID)
		assert.Equal(t, "INVOICE_CREATED", req.Event)
		return []ingest.Result{
			{ID: "n-1", Channel: models.ChannelEmail, Status: models.StatusQueued},
			{ID: "n-2", Channel: models.ChannelInApp, Status: models.StatusQueued},
		}, nil
	}

	rec, body := h.do(t, http.MethodPost, "/api/notifications/send", `{
		"event": "INVOICE_CREATED",
		"channels": ["EMAIL", "IN_APP"],
		"user": {"id": "u1", "email": "a@b.com"},
		"body": "Your invoice is ready"
	}`, true)

	require.Equal(t, http.StatusAccepted, rec.Code)
	data := body["data"].(map[string]interface{})
	list := data["notifications"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, "QUEUED", list[0].(map[string]interface{})["status"])
}

func TestSend_SchemaViolation(t *testing.T) {
	h := newHarness()
	h.sender.SendFunc = func(context.Context, ingest.Caller, *ingest.Request) ([]ingest.Result, error) {
		t.Fatal("sender must not be called")
		return nil, nil
	}

	rec, body := h.do(t, http.MethodPost, "/api/notifications/send", `{"event": "X", "channels": ["FAX"], "user": {"id": "u1"}}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
}

func TestSend_InfrastructureErrorHidesDetails(t *testing.T) {
	h := newHarness()
	h.sender.SendFunc = func(context.Context, ingest.Caller, *ingest.Request) ([]ingest.Result, error) {
		return nil, apperrors.NewQueueError("enqueue notifications", errors.New("dial tcp 10.0.0.3:6379"))
	}

	rec, body := h.do(t, http.MethodPost, "/api/notifications/send", `{"event": "X", "channels": ["PUSH"], "user": {"id": "u1"}}`, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	e := body["error"].(map[string]interface{})
	assert.Equal(t, "QUEUE_ERROR", e["code"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestList_ScopesToCaller(t *testing.T) {
	h := newHarness()
	h.reader.ListFunc = func(_ context.Context, f models.NotificationFilter) (*models.NotificationPage, error) {
		assert.Equal(t, "t-1", f.TenantID)
		assert.Equal(t, "a-1", f.AppID)
		assert.Equal(t, "u1", f.UserID)
		assert.Equal(t, models.ChannelInApp, f.Channel)
		assert.Equal(t, 5, f.Limit)
		return &models.NotificationPage{Notifications: []models.Notification{}, Total: 3, UnreadCount: 2, Limit: 5}, nil
	}

	rec, body := h.do(t, http.MethodGet, "/api/notifications?userId=u1&channel=IN_APP&limit=5", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(2), data["unreadCount"])
}

func TestList_RequiresUserID(t *testing.T) {
	h := newHarness()

	rec, body := h.do(t, http.MethodGet, "/api/notifications", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
}

func TestMarkRead(t *testing.T) {
	h := newHarness()
	readAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.reader.MarkReadFunc = func(_ context.Context, _, _, id string) (*models.Notification, error) {
		if id == "missing" {
			return nil, errors.WithStack(store.ErrNotFound)
		}
		return &models.Notification{ID: id, ReadAt: &readAt}, nil
	}

	rec, body := h.do(t, http.MethodPatch, "/api/notifications/n-1/read", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	n := body["data"].(map[string]interface{})["notification"].(map[string]interface{})
	assert.Equal(t, "n-1", n["id"])

	rec, body = h.do(t, http.MethodPatch, "/api/notifications/missing/read", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errorCode(t, body))
}

func TestPushTokens_Register(t *testing.T) {
	h := newHarness()
	h.tokens.RegisterFunc = func(_ context.Context, tok *models.PushToken) error {
		assert.Equal(t, "t-1", tok.TenantID)
		assert.Equal(t, models.PlatformAndroid, tok.Platform)
		assert.Equal(t, "dev-1", tok.DeviceID)
		tok.ID = "pt-1"
		tok.IsActive = true
		return nil
	}

	rec, body := h.do(t, http.MethodPost, "/api/push-tokens/register",
		`{"userId": "u1", "token": "fcm-abc", "platform": "android", "deviceId": "dev-1"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "pt-1", data["id"])
	assert.Equal(t, true, data["isActive"])

	require.Len(t, h.sink.entries, 1)
	assert.Equal(t, models.AuditPushTokenRegistered, h.sink.entries[0].Action)
	assert.Equal(t, "pt-1", h.sink.entries[0].ResourceID)
}

func TestPushTokens_RegisterRejectsPlatform(t *testing.T) {
	h := newHarness()

	rec, body := h.do(t, http.MethodPost, "/api/push-tokens/register",
		`{"userId": "u1", "token": "fcm-abc", "platform": "blackberry"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
	fields := body["error"].(map[string]interface{})["fields"].([]interface{})
	assert.Equal(t, "platform", fields[0].(map[string]interface{})["field"])
}

func TestPushTokens_Unregister(t *testing.T) {
	h := newHarness()
	h.tokens.UnregisterFunc = func(_ context.Context, _, _, token string) error {
		if token == "gone" {
			return errors.WithStack(store.ErrNotFound)
		}
		return nil
	}

	rec, body := h.do(t, http.MethodPost, "/api/push-tokens/unregister", `{"token": "fcm-abc"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Token deactivated", body["message"])
	assert.Len(t, h.sink.entries, 1)

	rec, _ = h.do(t, http.MethodPost, "/api/push-tokens/unregister", `{"token": "gone"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, h.sink.entries, 1)
}

func TestTemplatePreview(t *testing.T) {
	h := newHarness()
	h.previewer.PreviewFunc = func(_ context.Context, tenantID, templateID string, sample map[string]interface{}) (*models.RenderedContent, error) {
		assert.Equal(t, "t-1", tenantID)
		assert.Equal(t, "tpl-1", templateID)
		return &models.RenderedContent{Subject: "Hi", Body: "Hello " + sample["name"].(string)}, nil
	}

	rec, body := h.do(t, http.MethodPost, "/api/templates/tpl-1/preview", `{"data": {"name": "Ada"}}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello Ada", body["data"].(map[string]interface{})["body"])
}

func TestReady(t *testing.T) {
	h := newHarness()
	h.deps.Ready = func(context.Context) error { return errors.New("postgres down") }

	rec, _ := h.do(t, http.MethodGet, "/ready", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}
