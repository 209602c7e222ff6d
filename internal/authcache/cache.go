// internal/authcache/cache.go
package authcache

import (
	"context"
	"sync"
	"time"

	"notification-pipeline/internal/common/crypto"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/models"

	"golang.org/x/sync/singleflight"
)

// Directory resolves API key candidates and their owning tenant.
type Directory interface {
	AppsByPrefix(ctx context.Context, prefix string) ([]models.App, error)
	Get(ctx context.Context, tenantID string) (*models.Tenant, error)
}

type Config struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

type Stats struct {
	Size       int           `json:"size"`
	MaxEntries int           `json:"maxEntries"`
	TTL        time.Duration `json:"ttl"`
}

type entry struct {
	identity  models.Identity
	expiresAt time.Time
}

// Cache verifies API keys and remembers successful verifications for TTL.
// Entries are keyed by the SHA-256 digest of the raw key.
type Cache struct {
	dir     Directory
	cfg     Config
	logger  logger.Logger
	compare func(raw, hash string) bool
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	// gen is bumped by Invalidate. A verification started under an older gen is not stored.
	gen   uint64
	group singleflight.Group
}

func New(dir Directory, cfg Config, log logger.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Cache{
		dir:     dir,
		cfg:     cfg,
		logger:  logger.Component(log, "authcache"),
		compare: crypto.CompareAPIKey,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Verify returns the identity behind raw or an AuthError.
func (c *Cache) Verify(ctx context.Context, raw string) (*models.Identity, error) {
	if raw == "" {
		return nil, apperrors.NewAuthError("missing API key")
	}
	key := crypto.Digest(raw)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		metrics.AuthCacheLookups.WithLabelValues("hit").Inc()
		id := e.identity
		return &id, nil
	}
	metrics.AuthCacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		id, err := c.verifySlow(ctx, raw)
		if err != nil {
			return nil, err
		}
		c.store(key, *id, gen)
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	id := *v.(*models.Identity)
	return &id, nil
}

func (c *Cache) verifySlow(ctx context.Context, raw string) (*models.Identity, error) {
	prefix := crypto.LookupPrefix(raw)
	apps, err := c.dir.AppsByPrefix(ctx, prefix)
	if err != nil {
		return nil, apperrors.NewDatabaseError("apps by prefix", err)
	}

	var matched *models.App
	for i := range apps {
		if c.compare(raw, apps[i].APIKeyHash) {
			matched = &apps[i]
			break
		}
	}
	if matched == nil {
		return nil, apperrors.NewAuthError("invalid API key")
	}

	tenant, err := c.dir.Get(ctx, matched.TenantID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get tenant", err)
	}
	if tenant == nil || !tenant.IsActive {
		return nil, apperrors.NewAuthError("tenant is inactive")
	}

	return &models.Identity{
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		AppID:      matched.ID,
		AppName:    matched.Name,
		KeyPrefix:  prefix,
	}, nil
}

func (c *Cache) store(key string, id models.Identity, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry{identity: id, expiresAt: c.now().Add(c.cfg.TTL)}
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		metrics.AuthCacheEvictions.WithLabelValues("capacity").Inc()
	}
}

// Invalidate drops the cached verification of raw.
func (c *Cache) Invalidate(raw string) {
	key := crypto.Digest(raw)
	c.mu.Lock()
	delete(c.entries, key)
	c.gen++
	c.mu.Unlock()
	c.group.Forget(key)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		metrics.AuthCacheEvictions.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

// Run sweeps on the configured interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired auth entries", map[string]interface{}{"removed": n})
			}
		}
	}
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Size: len(c.entries), MaxEntries: c.cfg.MaxEntries, TTL: c.cfg.TTL}
}
