// internal/channels/push.go
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/vault"

	"firebase.google.com/go/v4/messaging"
)

// MaxMulticastTokens is the FCM limit on tokens per multicast call.
const MaxMulticastTokens = 500

type PushClientSource interface {
	PushClient(ctx context.Context, tenantID string) (vault.PushClient, error)
}

type PushTokenStore interface {
	ActiveFor(ctx context.Context, tenantID, appID, userID string) ([]models.PushToken, error)
	Deactivate(ctx context.Context, tenantID, appID string, tokens []string) error
	Touch(ctx context.Context, tenantID, appID string, tokens []string) error
}

type PushDispatcher struct {
	clients      PushClientSource
	tokens       PushTokenStore
	logger       logger.Logger
	batchSize    int
	invalidToken func(error) bool
}

func NewPushDispatcher(clients PushClientSource, tokens PushTokenStore, log logger.Logger) *PushDispatcher {
	return &PushDispatcher{
		clients:      clients,
		tokens:       tokens,
		logger:       logger.Component(log, "push-dispatcher"),
		batchSize:    MaxMulticastTokens,
		invalidToken: isPermanentTokenError,
	}
}

// isPermanentTokenError matches registration-token-not-registered, invalid-registration-token and invalid-argument.
func isPermanentTokenError(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

func (d *PushDispatcher) Channel() models.Channel { return models.ChannelPush }

func (d *PushDispatcher) Send(ctx context.Context, msg Message) (*Outcome, error) {
	client, err := d.clients.PushClient(ctx, msg.TenantID)
	if err != nil {
		recordOutcome(models.ChannelPush, vault.ProviderFCM, err)
		return nil, err
	}

	tokens, err := d.tokens.ActiveFor(ctx, msg.TenantID, msg.AppID, msg.UserID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load push tokens", err)
	}
	if len(tokens) == 0 {
		d.logger.Info("no active push tokens", map[string]interface{}{
			"notificationId": msg.NotificationID,
			"userId":         msg.UserID,
		})
		return &Outcome{Status: models.StatusFailed, Provider: vault.ProviderFCM, Error: "No active push tokens for user"}, nil
	}

	values := make([]string, len(tokens))
	for i, t := range tokens {
		values[i] = t.Token
	}

	out := &Outcome{Provider: vault.ProviderFCM}
	var succeeded []string
	var transportErr error

	for start := 0; start < len(values); start += d.batchSize {
		end := start + d.batchSize
		if end > len(values) {
			end = len(values)
		}
		batch := values[start:end]

		resp, err := client.SendEachForMulticast(ctx, d.buildMessage(msg, batch))
		if err != nil {
			transportErr = err
			out.Failed += len(batch)
			continue
		}
		for i, r := range resp.Responses {
			if i >= len(batch) {
				break
			}
			if r.Success {
				out.Succeeded++
				succeeded = append(succeeded, batch[i])
				continue
			}
			out.Failed++
			if r.Error != nil && d.invalidToken(r.Error) {
				out.InvalidTokens = append(out.InvalidTokens, batch[i])
				d.logger.Debug("device token rejected", map[string]interface{}{
					"error": apperrors.NewPermanentTokenError(batch[i], r.Error).Error(),
				})
			}
		}
	}

	if out.Succeeded == 0 && transportErr != nil {
		recordOutcome(models.ChannelPush, vault.ProviderFCM, transportErr)
		return nil, apperrors.NewProviderError(vault.ProviderFCM, transportErr)
	}

	d.cleanupTokens(ctx, msg, out.InvalidTokens, succeeded)

	if out.Succeeded > 0 {
		out.Status = models.StatusSent
		recordOutcome(models.ChannelPush, vault.ProviderFCM, nil)
	} else {
		out.Status = models.StatusFailed
		out.Error = fmt.Sprintf("All %d push deliveries failed", out.Failed)
		recordOutcome(models.ChannelPush, vault.ProviderFCM, fmt.Errorf("%s", out.Error))
	}

	d.logger.Info("push dispatched", map[string]interface{}{
		"notificationId": msg.NotificationID,
		"success":        out.Succeeded,
		"failure":        out.Failed,
		"invalid":        len(out.InvalidTokens),
	})
	return out, nil
}

func (d *PushDispatcher) cleanupTokens(ctx context.Context, msg Message, invalid, succeeded []string) {
	if len(invalid) > 0 {
		if err := d.tokens.Deactivate(ctx, msg.TenantID, msg.AppID, invalid); err != nil {
			d.logger.Warn("failed to deactivate push tokens", map[string]interface{}{
				"count": len(invalid),
				"error": err.Error(),
			})
		} else {
			metrics.PushTokensDeactivated.Add(float64(len(invalid)))
		}
	}
	if len(succeeded) > 0 {
		if err := d.tokens.Touch(ctx, msg.TenantID, msg.AppID, succeeded); err != nil {
			d.logger.Warn("failed to refresh push token usage", map[string]interface{}{
				"count": len(succeeded),
				"error": err.Error(),
			})
		}
	}
}

func (d *PushDispatcher) buildMessage(msg Message, tokens []string) *messaging.MulticastMessage {
	imageURL, _ := msg.Data["imageUrl"].(string)
	badge := 1

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   pushData(msg),
		Notification: &messaging.Notification{
			Title:    msg.Subject,
			Body:     msg.Body,
			ImageURL: imageURL,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "default",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default", Badge: &badge},
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{Icon: imageURL},
		},
	}
}

// pushData flattens the payload into the string map FCM requires.
func pushData(msg Message) map[string]string {
	data := make(map[string]string, len(msg.Data)+2)
	for k, v := range msg.Data {
		data[k] = stringify(v)
	}
	data["notificationId"] = msg.NotificationID
	data["event"] = msg.Event
	return data
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
