package memory

import (
	"context"
	"sync"
	"time"

	"smartwallet/pkg/cache"
)

// MemoryCache is an in-process cache.Layer with TTL expiry and LRU eviction.
type MemoryCache struct {
	data map[string]*cache.Entry

	// mu protects data and closed
	mu     sync.Mutex
	closed bool

	config MemoryCacheConfig

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
}

// MemoryCacheConfig holds configuration for the memory cache
type MemoryCacheConfig struct {
	// Name is the cache layer identifier
	Name string

	// MaxSize is the maximum number of entries (0 = unlimited)
	MaxSize int

	// DefaultTTL is the default time-to-live for entries
	DefaultTTL time.Duration

	// CleanupInterval is how often to check for expired entries
	CleanupInterval time.Duration
}

// NewMemoryCache creates a new in-memory cache with the given configuration.
// It starts a background goroutine for TTL cleanup.
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	c := &MemoryCache{
		data:          make(map[string]*cache.Entry),
		config:        config,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	c.wg.Add(1)
	go c.cleanup()

	return c
}

// Get returns a copy of the stored value or cache.ErrKeyNotFound.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, cache.ErrClosed
	}

	entry, ok := c.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}

	now := time.Now()
	if entry.IsExpired(now) {
		delete(c.data, key)
		return nil, cache.ErrKeyNotFound
	}
	entry.AccessedAt = now

	return cache.Clone(entry.Value), nil
}

// Set stores a copy of value. A zero ttl uses DefaultTTL. When MaxSize is
// reached the least recently used entry is evicted.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrClosed
	}

	if _, exists := c.data[key]; !exists && c.config.MaxSize > 0 && len(c.data) >= c.config.MaxSize {
		c.evictLRU()
	}

	now := time.Now()
	c.data[key] = &cache.Entry{
		Value:      cache.Clone(value),
		ExpiresAt:  now.Add(ttl),
		AccessedAt: now,
	}

	return nil
}

// evictLRU removes the least recently accessed entry. Caller holds mu.
func (c *MemoryCache) evictLRU() {
	var lruKey string
	var lruTime time.Time

	for k, e := range c.data {
		if lruKey == "" || e.AccessedAt.Before(lruTime) {
			lruKey = k
			lruTime = e.AccessedAt
		}
	}

	if lruKey != "" {
		delete(c.data, lruKey)
	}
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrClosed
	}
	delete(c.data, key)

	return nil
}

// Name returns the cache layer name.
func (c *MemoryCache) Name() string {
	return c.config.Name
}

// Close stops the cleanup goroutine and drops all entries. Close is idempotent.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.data = nil
	c.mu.Unlock()

	c.cleanupTicker.Stop()
	close(c.stopCleanup)
	c.wg.Wait()

	return nil
}

func (c *MemoryCache) cleanup() {
	defer c.wg.Done()

	for {
		select {
		case <-c.cleanupTicker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if entry.IsExpired(now) {
			delete(c.data, key)
		}
	}
}

// Len returns the number of stored entries, expired ones included until cleanup.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

var _ cache.Layer = (*MemoryCache)(nil)
