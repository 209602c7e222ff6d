package worker

import (
	"context"
	"sync"
	"time"

	"notification-pipeline/internal/channels"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/queue"
)

type mockNotificationStore struct {
	mu               sync.Mutex
	UpdateStatusFunc func(ctx context.Context, id string, upd models.StatusUpdate) error
	updates          []models.StatusUpdate
}

func (m *mockNotificationStore) UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	m.mu.Lock()
	m.updates = append(m.updates, upd)
	m.mu.Unlock()
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, upd)
	}
	return nil
}

func (m *mockNotificationStore) last() models.StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[len(m.updates)-1]
}

type mockRenderer struct {
	RenderEmailFunc   func(ctx context.Context, tenantID, appID, event string, data map[string]interface{}, fallbackBody, fallbackSubject string) (*models.RenderedEmail, error)
	RenderContentFunc func(ctx context.Context, tenantID, appID, event string, channel models.Channel, data map[string]interface{}) (*models.RenderedContent, error)
}

func (m *mockRenderer) RenderEmail(ctx context.Context, tenantID, appID, event string, data map[string]interface{}, fallbackBody, fallbackSubject string) (*models.RenderedEmail, error) {
	if m.RenderEmailFunc == nil {
		return nil, nil
	}
	return m.RenderEmailFunc(ctx, tenantID, appID, event, data, fallbackBody, fallbackSubject)
}

func (m *mockRenderer) RenderContent(ctx context.Context, tenantID, appID, event string, channel models.Channel, data map[string]interface{}) (*models.RenderedContent, error) {
	if m.RenderContentFunc == nil {
		return nil, nil
	}
	return m.RenderContentFunc(ctx, tenantID, appID, event, channel, data)
}

type mockDispatcher struct {
	channel  models.Channel
	SendFunc func(ctx context.Context, msg channels.Message) (*channels.Outcome, error)
	sent     []channels.Message
}

func (m *mockDispatcher) Channel() models.Channel { return m.channel }

func (m *mockDispatcher) Send(ctx context.Context, msg channels.Message) (*channels.Outcome, error) {
	m.sent = append(m.sent, msg)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return &channels.Outcome{Status: models.SuccessStatus(m.channel)}, nil
}

type failCall struct {
	cause error
	retry bool
}

type mockJobClient struct {
	mu        sync.Mutex
	completed []string
	failed    []failCall
}

func (m *mockJobClient) Complete(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, job.ID)
	return nil
}

func (m *mockJobClient) Fail(_ context.Context, _ *queue.Job, cause error, retry bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, failCall{cause: cause, retry: retry})
	return nil
}

type mockPurger struct {
	PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
	cutoffs   []time.Time
}

func (m *mockPurger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.PurgeFunc(ctx, cutoff)
}
