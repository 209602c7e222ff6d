// internal/channels/email.go
package channels

import (
	"context"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/vault"
)

// MailerSource yields the tenant bound mail transport.
type MailerSource interface {
	Mailer(ctx context.Context, tenantID string) (vault.Mailer, error)
}

type EmailDispatcher struct {
	mailers MailerSource
	logger  logger.Logger
}

func NewEmailDispatcher(mailers MailerSource, log logger.Logger) *EmailDispatcher {
	return &EmailDispatcher{
		mailers: mailers,
		logger:  logger.Component(log, "email-dispatcher"),
	}
}

func (d *EmailDispatcher) Channel() models.Channel { return models.ChannelEmail }

func (d *EmailDispatcher) Send(ctx context.Context, msg Message) (*Outcome, error) {
	if msg.Email == "" {
		return nil, apperrors.NewValidationError("user email is required for EMAIL channel")
	}

	mailer, err := d.mailers.Mailer(ctx, msg.TenantID)
	if err != nil {
		recordOutcome(models.ChannelEmail, "", err)
		return nil, err
	}

	err = mailer.Send(ctx, vault.MailMessage{To: msg.Email, Subject: msg.Subject, HTML: msg.Body})
	recordOutcome(models.ChannelEmail, mailer.Provider(), err)
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewProviderError(mailer.Provider(), err)
		}
		return nil, err
	}

	d.logger.Debug("email sent", map[string]interface{}{
		"notificationId": msg.NotificationID,
		"provider":       mailer.Provider(),
	})
	return &Outcome{Status: models.StatusSent, Provider: mailer.Provider(), Succeeded: 1}, nil
}
