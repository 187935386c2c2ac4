package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

type memoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryItem
}

// NewMemory returns an in-process cache. Expired entries are dropped lazily
// when read.
func NewMemory(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryItem)}
}

func (c *memoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return cloneEntry(item.entry), true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryItem{entry: cloneEntry(entry), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memoryCache) Close(context.Context) error {
	return nil
}
