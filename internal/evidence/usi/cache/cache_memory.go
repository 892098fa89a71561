package cache

import (
	"context"
	"sync"
	"time"

	"usiverify/internal/evidence/usi/models"
	"usiverify/pkg/platform/sentinel"
)

const sweepInterval = time.Minute

type cachedOutcome struct {
	entry     entry
	expiresAt time.Time
}

// InMemoryCache keeps outcomes in process with TTL expiry.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cachedOutcome
	ttl     time.Duration
	now     func() time.Time
}

type MemoryOption func(*InMemoryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *InMemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewInMemory(ttl time.Duration, opts ...MemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]cachedOutcome),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached outcome or sentinel.ErrNotFound when missing or expired.
func (c *InMemoryCache) Get(_ context.Context, key string) (models.Outcome, error) {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return models.Outcome{}, sentinel.ErrNotFound
	}
	if !c.now().Before(cached.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return models.Outcome{}, sentinel.ErrNotFound
	}
	return cached.entry.outcome(), nil
}

// Set stores outcome for the cache TTL. A non-positive TTL disables caching.
func (c *InMemoryCache) Set(_ context.Context, key string, outcome models.Outcome) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedOutcome{entry: toEntry(outcome), expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Sweep evicts every expired entry.
func (c *InMemoryCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, cached := range c.entries {
		if !now.Before(cached.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Run sweeps expired entries until ctx is cancelled.
func (c *InMemoryCache) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len reports the number of entries, including expired ones not yet evicted.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
