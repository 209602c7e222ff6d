// internal/channels/sms.go
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "notification-pipeline/internal/common/errors"
	commonhttp "notification-pipeline/internal/common/http"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
)

// CredentialResolver yields the decrypted credential of a tenant channel.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID string, channel models.Channel) (*models.DecryptedConfig, error)
}

// SMSProvider maps a uniform (to, body) send onto one gateway's contract.
type SMSProvider interface {
	Name() string
	Send(ctx context.Context, to, body string, values map[string]interface{}) error
}

type SMSDispatcher struct {
	creds     CredentialResolver
	providers map[string]SMSProvider
	logger    logger.Logger
}

func NewSMSDispatcher(creds CredentialResolver, log logger.Logger, providers ...SMSProvider) *SMSDispatcher {
	d := &SMSDispatcher{
		creds:     creds,
		providers: make(map[string]SMSProvider, len(providers)),
		logger:    logger.Component(log, "sms-dispatcher"),
	}
	for _, p := range providers {
		d.providers[strings.ToLower(p.Name())] = p
	}
	return d
}

func (d *SMSDispatcher) Channel() models.Channel { return models.ChannelSMS }

func (d *SMSDispatcher) Send(ctx context.Context, msg Message) (*Outcome, error) {
	if msg.Mobile == "" {
		return nil, apperrors.NewValidationError("user mobile is required for SMS channel")
	}

	cfg, err := d.creds.Resolve(ctx, msg.TenantID, models.ChannelSMS)
	if err != nil {
		recordOutcome(models.ChannelSMS, "", err)
		return nil, err
	}

	provider, ok := d.providers[strings.ToLower(cfg.Provider)]
	if !ok {
		err := apperrors.NewUnknownProviderError(string(models.ChannelSMS), cfg.Provider)
		recordOutcome(models.ChannelSMS, cfg.Provider, err)
		return nil, err
	}

	err = provider.Send(ctx, msg.Mobile, msg.Body, cfg.Values)
	recordOutcome(models.ChannelSMS, provider.Name(), err)
	if err != nil {
		return nil, classifyProviderError(provider.Name(), err)
	}

	d.logger.Debug("sms sent", map[string]interface{}{
		"notificationId": msg.NotificationID,
		"provider":       provider.Name(),
	})
	return &Outcome{Status: models.StatusSent, Provider: provider.Name(), Succeeded: 1}, nil
}

// classifyProviderError treats rejected credentials as configuration and everything else as transient.
func classifyProviderError(provider string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	var se *commonhttp.StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden) {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("%s rejected the tenant credentials (status %d)", provider, se.StatusCode), err)
	}
	return apperrors.NewProviderError(provider, err)
}
