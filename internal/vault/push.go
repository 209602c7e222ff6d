// internal/vault/push.go
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const ProviderFCM = "fcm"

// PushClient is the multicast surface of the FCM messaging client.
type PushClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// PushFactory builds a client from a service account document.
type PushFactory func(ctx context.Context, serviceAccount []byte) (PushClient, error)

// NewFirebaseClient initializes a dedicated Firebase app for one service account.
func NewFirebaseClient(ctx context.Context, serviceAccount []byte) (PushClient, error) {
	var sa struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(serviceAccount, &sa); err != nil {
		return nil, fmt.Errorf("invalid service account: %w", err)
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: sa.ProjectID}, option.WithCredentialsJSON(serviceAccount))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}
	return client, nil
}

// PushClient returns the tenant's cached push client. It stays cached until Invalidate.
func (v *Vault) PushClient(ctx context.Context, tenantID string) (PushClient, error) {
	v.mu.Lock()
	c, ok := v.pushers[tenantID]
	v.mu.Unlock()
	if ok {
		return c, nil
	}

	key := cacheKey(models.ChannelPush, tenantID)
	res, err, _ := v.group.Do(key, func() (interface{}, error) {
		gen := v.generation(key)
		cfg, err := v.Resolve(ctx, tenantID, models.ChannelPush)
		if err != nil {
			return nil, err
		}
		if p := strings.ToLower(cfg.Provider); p != ProviderFCM && p != "" {
			return nil, apperrors.NewUnknownProviderError(string(models.ChannelPush), cfg.Provider)
		}

		raw, err := json.Marshal(cfg.Values)
		if err != nil {
			return nil, apperrors.NewConfigurationError("invalid push credential", err)
		}
		client, err := v.pushFactory(ctx, raw)
		if err != nil {
			return nil, apperrors.NewConfigurationError("failed to build push client", err)
		}

		v.mu.Lock()
		if v.gens[key] == gen {
			v.pushers[tenantID] = client
		}
		v.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(PushClient), nil
}
