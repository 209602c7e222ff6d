// internal/vault/vault.go
package vault

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"notification-pipeline/internal/common/crypto"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/realtime"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/sync/singleflight"
)

// CredentialStore is the persistence the vault reads from and rotates into.
type CredentialStore interface {
	ActiveFor(ctx context.Context, tenantID string, channel models.Channel) (*models.Credential, error)
	ReplaceActive(ctx context.Context, c *models.Credential) error
}

// InvalidationChannel carries rotated (tenant, channel) slots to every process holding a vault.
const InvalidationChannel = "vault:invalidate"

type invalidation struct {
	TenantID string         `json:"tenantId"`
	Channel  models.Channel `json:"channel"`
}

type Options struct {
	MailClientTTL time.Duration
	AWSRegion     string
}

type mailerEntry struct {
	mailer   Mailer
	cachedAt time.Time
}

// Vault decrypts tenant credentials and caches the provider clients built from them.
// Every cache is keyed by tenant id, so a client is never shared across tenants.
type Vault struct {
	store  CredentialStore
	cipher *crypto.Cipher
	opts   Options
	logger logger.Logger
	now    func() time.Time

	mailFactories map[string]MailerFactory
	pushFactory   PushFactory

	mu      sync.Mutex
	mailers map[string]mailerEntry
	pushers map[string]PushClient
	// gens is bumped by Invalidate. A build only caches its client if the generation
	// it started under is still current.
	gens  map[string]uint64
	group singleflight.Group

	bus realtime.Bus

	rotateMu    sync.Mutex
	rotateLocks map[string]*sync.Mutex
}

func New(store CredentialStore, cipher *crypto.Cipher, opts Options, log logger.Logger) *Vault {
	if opts.MailClientTTL <= 0 {
		opts.MailClientTTL = 5 * time.Minute
	}
	return &Vault{
		store:  store,
		cipher: cipher,
		opts:   opts,
		logger: logger.Component(log, "vault"),
		now:    time.Now,
		mailFactories: map[string]MailerFactory{
			ProviderSMTP: newSMTPMailer,
			ProviderSES:  newSESMailer,
		},
		pushFactory: NewFirebaseClient,
		mailers:     make(map[string]mailerEntry),
		pushers:     make(map[string]PushClient),
		gens:        make(map[string]uint64),
		rotateLocks: make(map[string]*sync.Mutex),
	}
}

// Resolve returns the decrypted active credential of a tenant for a channel.
// No credential and a failed decryption are both configuration errors.
func (v *Vault) Resolve(ctx context.Context, tenantID string, channel models.Channel) (*models.DecryptedConfig, error) {
	cred, err := v.store.ActiveFor(ctx, tenantID, channel)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load credential", err)
	}
	if cred == nil {
		return nil, apperrors.NewMissingCredentialError(tenantID, string(channel))
	}

	values, err := v.cipher.Decrypt(cred.EncryptedConfig)
	if err != nil {
		v.logger.Error("credential decryption failed", map[string]interface{}{
			"tenantId":     tenantID,
			"channel":      channel,
			"credentialId": cred.ID,
		})
		return nil, apperrors.NewConfigurationError("stored credential could not be decrypted", err).
			WithMetadata("credentialId", cred.ID)
	}

	return &models.DecryptedConfig{CredentialID: cred.ID, Provider: cred.Provider, Values: values}, nil
}

// Invalidate drops cached clients of a tenant for a channel. Builds already in flight
// still answer their callers but no longer populate the cache.
func (v *Vault) Invalidate(tenantID string, channel models.Channel) {
	key := cacheKey(channel, tenantID)
	v.mu.Lock()
	switch channel {
	case models.ChannelEmail:
		delete(v.mailers, tenantID)
	case models.ChannelPush:
		delete(v.pushers, tenantID)
	}
	v.gens[key]++
	v.mu.Unlock()
	v.group.Forget(key)

	v.logger.Info("client cache invalidated", map[string]interface{}{
		"tenantId": tenantID,
		"channel":  channel,
	})
}

func (v *Vault) generation(key string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gens[key]
}

// AnnounceOn makes Rotate publish every invalidation on bus so other processes drop their clients.
func (v *Vault) AnnounceOn(bus realtime.Bus) {
	v.bus = bus
}

// Watch applies invalidations announced by other processes until ctx ends.
func (v *Vault) Watch(ctx context.Context, bus realtime.Bus) error {
	return bus.Subscribe(ctx, InvalidationChannel, func(payload []byte) {
		var msg invalidation
		if err := json.Unmarshal(payload, &msg); err != nil || msg.TenantID == "" || !msg.Channel.Valid() {
			v.logger.Warn("dropping malformed invalidation", map[string]interface{}{"payload": string(payload)})
			return
		}
		v.Invalidate(msg.TenantID, msg.Channel)
	})
}

func (v *Vault) announce(ctx context.Context, tenantID string, channel models.Channel) error {
	if v.bus == nil {
		return nil
	}
	payload, err := json.Marshal(invalidation{TenantID: tenantID, Channel: channel})
	if err != nil {
		return err
	}
	return v.bus.Publish(ctx, InvalidationChannel, payload)
}

// Rotate replaces the active credential of (tenant, channel), invalidates the cached client
// and announces the invalidation. Rotations for the same slot are serialized in process; the
// store serializes across processes. When the announcement fails the new credential is
// already active and is returned together with the error.
func (v *Vault) Rotate(ctx context.Context, tenantID string, channel models.Channel, provider string, values map[string]interface{}) (*models.Credential, error) {
	if !channel.HasCredential() {
		return nil, apperrors.NewValidationError("channel " + string(channel) + " does not take credentials")
	}
	if provider == "" {
		return nil, apperrors.NewValidationError("provider is required")
	}

	encrypted, err := v.cipher.Encrypt(values)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	lock := v.rotateLock(tenantID + ":" + string(channel))
	lock.Lock()
	defer lock.Unlock()

	cred := &models.Credential{
		TenantID:        tenantID,
		Channel:         channel,
		Provider:        provider,
		EncryptedConfig: encrypted,
	}
	if err := v.store.ReplaceActive(ctx, cred); err != nil {
		return nil, apperrors.NewDatabaseError("rotate credential", err)
	}

	v.Invalidate(tenantID, channel)
	if err := v.announce(ctx, tenantID, channel); err != nil {
		return cred, apperrors.NewQueueError("announce credential rotation", err)
	}
	return cred, nil
}

func (v *Vault) rotateLock(key string) *sync.Mutex {
	v.rotateMu.Lock()
	defer v.rotateMu.Unlock()
	l, ok := v.rotateLocks[key]
	if !ok {
		l = &sync.Mutex{}
		v.rotateLocks[key] = l
	}
	return l
}

func cacheKey(channel models.Channel, tenantID string) string {
	return string(channel) + ":" + tenantID
}

// Decode maps a decrypted credential onto a typed provider config.
// Numbers and booleans stored as strings are accepted.
func Decode(values map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(values)
}
