package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"
	"notification-pipeline/internal/vault"
)

func TestRegistry_For(t *testing.T) {
	log := logger.NewTestLogger(t)
	reg := NewRegistry(NewEmailDispatcher(&mockMailerSource{}, log), NewInAppDispatcher(&mockStatusWriter{}, &mockEmitter{}, log))

	d, err := reg.For(models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, d.Channel())

	_, err = reg.For(models.ChannelSMS)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
}

func TestEmailDispatcher_Send(t *testing.T) {
	mailer := &mockMailer{}
	src := &mockMailerSource{MailerFunc: func(_ context.Context, tenantID string) (vault.Mailer, error) {
		assert.Equal(t, "t1", tenantID)
		return mailer, nil
	}}
	d := NewEmailDispatcher(src, logger.NewTestLogger(t))

	out, err := d.Send(context.Background(), Message{
		NotificationID: "n1", TenantID: "t1", Email: "a@b.com", Subject: "Hi", Body: "<p>x</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, out.Status)
	assert.Equal(t, vault.ProviderSMTP, out.Provider)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, vault.MailMessage{To: "a@b.com", Subject: "Hi", HTML: "<p>x</p>"}, mailer.sent[0])
}

func TestEmailDispatcher_Errors(t *testing.T) {
	log := logger.NewTestLogger(t)

	t.Run("missing address", func(t *testing.T) {
		d := NewEmailDispatcher(&mockMailerSource{}, log)
		_, err := d.Send(context.Background(), Message{TenantID: "t1"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
	})

	t.Run("missing credential", func(t *testing.T) {
		d := NewEmailDispatcher(&mockMailerSource{MailerFunc: func(context.Context, string) (vault.Mailer, error) {
			return nil, apperrors.NewMissingCredentialError("t1", "EMAIL")
		}}, log)
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Email: "a@b.com"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfiguration))
		assert.False(t, apperrors.IsRetryable(err))
	})

	t.Run("transport failure is retryable", func(t *testing.T) {
		mailer := &mockMailer{SendFunc: func(context.Context, vault.MailMessage) error {
			return errors.New("421 try later")
		}}
		d := NewEmailDispatcher(&mockMailerSource{MailerFunc: func(context.Context, string) (vault.Mailer, error) {
			return mailer, nil
		}}, log)
		_, err := d.Send(context.Background(), Message{TenantID: "t1", Email: "a@b.com"})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProvider))
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestInAppDispatcher_PersistsThenEmits(t *testing.T) {
	var order []string
	rows := &mockStatusWriter{UpdateStatusFunc: func(_ context.Context, id string, upd models.StatusUpdate) error {
		order = append(order, "persist")
		assert.Equal(t, "n1", id)
		return nil
	}}
	em := &mockEmitter{}
	d := NewInAppDispatcher(rows, emitterFunc(func(ctx context.Context, tenantID, appID, userID, event string, data interface{}) error {
		order = append(order, "emit")
		return em.Emit(ctx, tenantID, appID, userID, event, data)
	}), logger.NewTestLogger(t))

	out, err := d.Send(context.Background(), Message{
		NotificationID: "n1", TenantID: "t1", AppID: "a1", UserID: "u1", Event: "INVOICE_CREATED",
		Subject: "INVOICE_CREATED", Body: "Your invoice is ready", Data: map[string]interface{}{"amount": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, out.Status)
	assert.True(t, out.Persisted)
	assert.Equal(t, []string{"persist", "emit"}, order)

	require.Len(t, rows.updates, 1)
	assert.Equal(t, models.StatusDelivered, rows.updates[0].Status)
	assert.Equal(t, "Your invoice is ready", *rows.updates[0].RenderedBody)
	assert.NotNil(t, rows.updates[0].SentAt)

	require.Len(t, em.events, 1)
	ev := em.events[0]
	assert.Equal(t, "t1", ev.tenantID)
	assert.Equal(t, "u1", ev.userID)
	assert.Equal(t, RealtimeEventName, ev.event)
	payload := ev.data.(map[string]interface{})
	assert.Equal(t, "n1", payload["id"])
	assert.Equal(t, "Your invoice is ready", payload["body"])
}

func TestInAppDispatcher_EmitFailureIsBestEffort(t *testing.T) {
	d := NewInAppDispatcher(&mockStatusWriter{}, &mockEmitter{err: errors.New("bus down")}, logger.NewTestLogger(t))

	out, err := d.Send(context.Background(), Message{NotificationID: "n1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, out.Status)
}

func TestInAppDispatcher_AlreadyDelivered(t *testing.T) {
	rows := &mockStatusWriter{UpdateStatusFunc: func(context.Context, string, models.StatusUpdate) error {
		return store.ErrStaleTransition
	}}
	em := &mockEmitter{}
	d := NewInAppDispatcher(rows, em, logger.NewTestLogger(t))

	out, err := d.Send(context.Background(), Message{NotificationID: "n1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, out.Status)
	assert.Empty(t, em.events)
}

func TestInAppDispatcher_StoreFailure(t *testing.T) {
	rows := &mockStatusWriter{UpdateStatusFunc: func(context.Context, string, models.StatusUpdate) error {
		return errors.New("conn refused")
	}}
	d := NewInAppDispatcher(rows, &mockEmitter{}, logger.NewTestLogger(t))

	_, err := d.Send(context.Background(), Message{NotificationID: "n1"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))
}

type emitterFunc func(ctx context.Context, tenantID, appID, userID, event string, data interface{}) error

func (f emitterFunc) Emit(ctx context.Context, tenantID, appID, userID, event string, data interface{}) error {
	return f(ctx, tenantID, appID, userID, event, data)
}
