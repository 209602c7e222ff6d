package channels

import (
	"context"
	"sync"

	"notification-pipeline/internal/models"
	"notification-pipeline/internal/vault"

	"firebase.google.com/go/v4/messaging"
)

type mockMailer struct {
	SendFunc func(ctx context.Context, msg vault.MailMessage) error
	sent     []vault.MailMessage
}

func (m *mockMailer) Send(ctx context.Context, msg vault.MailMessage) error {
	m.sent = append(m.sent, msg)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

func (m *mockMailer) From() string     { return "noreply@acme.test" }
func (m *mockMailer) Provider() string { return vault.ProviderSMTP }

type mockMailerSource struct {
	MailerFunc func(ctx context.Context, tenantID string) (vault.Mailer, error)
}

func (m *mockMailerSource) Mailer(ctx context.Context, tenantID string) (vault.Mailer, error) {
	return m.MailerFunc(ctx, tenantID)
}

type mockResolver struct {
	ResolveFunc func(ctx context.Context, tenantID string, channel models.Channel) (*models.DecryptedConfig, error)
}

func (m *mockResolver) Resolve(ctx context.Context, tenantID string, channel models.Channel) (*models.DecryptedConfig, error) {
	return m.ResolveFunc(ctx, tenantID, channel)
}

type mockPushClient struct {
	mu      sync.Mutex
	SendFn  func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	batches [][]string
	last    *messaging.MulticastMessage
}

func (m *mockPushClient) SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	m.mu.Lock()
	m.batches = append(m.batches, message.Tokens)
	m.last = message
	m.mu.Unlock()
	return m.SendFn(ctx, message)
}

type mockPushSource struct {
	client vault.PushClient
	err    error
}

func (m *mockPushSource) PushClient(context.Context, string) (vault.PushClient, error) {
	return m.client, m.err
}

type mockTokenStore struct {
	ActiveForFunc func(ctx context.Context, tenantID, appID, userID string) ([]models.PushToken, error)
	deactivated   []string
	touched       []string
}

func (m *mockTokenStore) ActiveFor(ctx context.Context, tenantID, appID, userID string) ([]models.PushToken, error) {
	return m.ActiveForFunc(ctx, tenantID, appID, userID)
}

func (m *mockTokenStore) Deactivate(_ context.Context, _, _ string, tokens []string) error {
	m.deactivated = append(m.deactivated, tokens...)
	return nil
}

func (m *mockTokenStore) Touch(_ context.Context, _, _ string, tokens []string) error {
	m.touched = append(m.touched, tokens...)
	return nil
}

type mockStatusWriter struct {
	UpdateStatusFunc func(ctx context.Context, id string, upd models.StatusUpdate) error
	updates          []models.StatusUpdate
}

func (m *mockStatusWriter) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	m.updates = append(m.updates, upd)
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, upd)
	}
	return nil
}

type emitted struct {
	tenantID, appID, userID, event string
	data                           interface{}
}

type mockEmitter struct {
	err    error
	events []emitted
}

func (m *mockEmitter) Emit(_ context.Context, tenantID, appID, userID, event string, data interface{}) error {
	m.events = append(m.events, emitted{tenantID, appID, userID, event, data})
	return m.err
}
