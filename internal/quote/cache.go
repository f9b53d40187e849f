package quote

import (
	"context"
	"sync"
	"time"

	"daily-stock-analysis/internal/models"
)

// Cache stores the last good quote per symbol.
// A stored quote is a hit while now < stored_at + ttl.
type Cache interface {
	Get(ctx context.Context, symbol string) (*models.Quote, bool, error)
	Set(ctx context.Context, q *models.Quote, ttl time.Duration) error
	Delete(ctx context.Context, symbol string) error
}

type cacheEntry struct {
	quote    models.Quote
	storedAt time.Time
	ttl      time.Duration
}

func (e cacheEntry) fresh(now time.Time) bool {
	return now.Before(e.storedAt.Add(e.ttl))
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu  sync.RWMutex
	m   map[string]cacheEntry
	now func() time.Time
}

// NewMemoryCache creates an empty in-process cache. A nil clock uses time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{m: make(map[string]cacheEntry), now: now}
}

// Get returns a copy of the cached quote if it is still fresh.
func (c *MemoryCache) Get(_ context.Context, symbol string) (*models.Quote, bool, error) {
	c.mu.RLock()
	e, ok := c.m[symbol]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.fresh(c.now()) {
		c.mu.Lock()
		// Only drop the entry we looked at; a concurrent Set may have replaced it.
		if cur, ok := c.m[symbol]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.m, symbol)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	q := e.quote
	return &q, true, nil
}

// Set stores a copy of q.
func (c *MemoryCache) Set(_ context.Context, q *models.Quote, ttl time.Duration) error {
	c.mu.Lock()
	c.m[q.Symbol] = cacheEntry{quote: *q, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
	return nil
}

// Delete removes the entry for symbol.
func (c *MemoryCache) Delete(_ context.Context, symbol string) error {
	c.mu.Lock()
	delete(c.m, symbol)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
