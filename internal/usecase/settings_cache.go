package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iho/ledgersync/internal/domain"
)

// ErrSettingsClosed is returned by a SettingsCache after Close.
var ErrSettingsClosed = errors.New("settings cache is closed")

// SettingsCache keeps the shared settings in memory. Concurrent misses for
// the same key share one fetch, and entries are dropped when another session
// announces a change.
type SettingsCache struct {
	ledger *LedgerUseCase
	group  singleflight.Group

	mu     sync.RWMutex
	values map[string]*domain.Setting
	ready  bool
}

// NewSettingsCache creates a SettingsCache. Call Init before use.
func NewSettingsCache(ledger *LedgerUseCase) *SettingsCache {
	return &SettingsCache{ledger: ledger}
}

// Init loads every setting. It may be called again after Close.
func (c *SettingsCache) Init(ctx context.Context) error {
	settings, err := readList(ctx, c.ledger.sync, listRead[*domain.Setting]{
		name:       domain.CollectionSettings,
		collection: c.ledger.cache.Settings,
		key:        func(s *domain.Setting) string { return domain.SettingKey(s.Key) },
		prune:      true,
		remote:     c.ledger.remote.Settings.List,
	})
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	values := make(map[string]*domain.Setting, len(settings))
	for _, s := range settings {
		values[s.Key] = s
	}

	c.mu.Lock()
	c.values = values
	c.ready = true
	c.mu.Unlock()
	return nil
}

// Close drops every cached value. Get and Set fail until the next Init.
func (c *SettingsCache) Close() {
	c.mu.Lock()
	c.values = nil
	c.ready = false
	c.mu.Unlock()
}

// Get returns the setting stored under key.
func (c *SettingsCache) Get(ctx context.Context, key string) (*domain.Setting, error) {
	key = strings.TrimSpace(key)

	c.mu.RLock()
	ready := c.ready
	s, ok := c.values[key]
	c.mu.RUnlock()
	if !ready {
		return nil, ErrSettingsClosed
	}
	if ok {
		return s, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return readOne(ctx, c.ledger.sync, oneRead[*domain.Setting]{
			name:       domain.CollectionSettings,
			collection: c.ledger.cache.Settings,
			id:         key,
			key:        domain.SettingKey(key),
			notFound:   domain.ErrSettingNotFound,
			remote: func(ctx context.Context) (*domain.Setting, error) {
				return c.ledger.remote.Settings.Get(ctx, key)
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s = v.(*domain.Setting)

	c.mu.Lock()
	if c.ready {
		c.values[key] = s
	}
	c.mu.Unlock()
	return s, nil
}

// All returns a snapshot of the cached settings.
func (c *SettingsCache) All() (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return nil, ErrSettingsClosed
	}
	out := make(map[string]string, len(c.values))
	for k, s := range c.values {
		out[k] = s.Value
	}
	return out, nil
}

// Set stores value under key, announces it to other sessions and queues it
// for the remote.
func (c *SettingsCache) Set(ctx context.Context, actor domain.Actor, key, value string) (*domain.Setting, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if err := domain.ValidateSettingKey(key); err != nil {
		return nil, err
	}

	previous, err := c.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrSettingNotFound):
		previous = nil
	case err != nil:
		return nil, err
	}

	setting := &domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err = c.ledger.sync.Submit(ctx, domain.SettingUpdated{Setting: setting, Previous: previous}, func(ctx context.Context) error {
		if err := c.ledger.cache.Settings.PutMany(ctx, []*domain.Setting{setting}); err != nil {
			return err
		}
		c.mu.Lock()
		if c.ready {
			c.values[key] = setting
		}
		c.mu.Unlock()
		c.ledger.sync.publish(ctx, domain.SettingsUpdated{Key: key, Value: value})
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta := domain.JSON{"key": key, "value": value}
	if previous != nil {
		meta["previous"] = previous.Value
	}
	c.ledger.audit.Log(ctx, actor, "", domain.AdminActionSettingUpdate, "setting "+key+" updated", meta)
	return setting, nil
}

// Invalidate drops key so the next Get fetches it again.
func (c *SettingsCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}

// HandleEvent invalidates the key of a settings-updated broadcast.
func (c *SettingsCache) HandleEvent(ev domain.Event) {
	if s, ok := ev.(domain.SettingsUpdated); ok {
		c.Invalidate(s.Key)
	}
}
