package data

import (
	"context"
	"errors"
	"sync"
	"time"
)

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryCache implements core.CacheRepository in process memory with lazy
// expiry: entries past their TTL are dropped on the next access. Used when
// no Redis is configured.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]cacheItem
	now   func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]cacheItem),
		now:   time.Now,
	}
}

// Set stores a value with the given key and TTL. A non-positive TTL stores
// the value without expiry.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	item := cacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

// Get retrieves a value by key. A miss or expired entry returns nil with no
// error.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	if item.expired(c.now()) {
		delete(c.items, key)
		return nil, nil
	}
	return append([]byte(nil), item.value...), nil
}

// Delete removes a key and reports whether a live entry was present.
func (c *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return false, nil
	}
	delete(c.items, key)
	return !item.expired(c.now()), nil
}

// Health always succeeds: there is no external dependency to probe.
func (c *MemoryCache) Health(_ context.Context) error {
	return nil
}
