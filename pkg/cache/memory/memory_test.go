package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"smartwallet/pkg/cache"
)

func newTestCache(t *testing.T, cfg MemoryCacheConfig) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(cfg)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})
	ctx := context.Background()

	if err := c.Set(ctx, "history:u-1", []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "history:u-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Expected [], got %q", got)
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})

	_, err := c.Get(context.Background(), "missing")
	if !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})
	ctx := context.Background()

	value := []byte("abc")
	c.Set(ctx, "k", value, 0)
	value[0] = 'x'

	got, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Expected stored value to be isolated from caller, got %q", got)
	}

	got[1] = 'y'
	again, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Expected returned value to be a copy, got %q", again)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); !cache.IsNotFound(err) {
		t.Errorf("Expected expired key to miss, got %v", err)
	}
}

func TestMemoryCache_Cleanup(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{CleanupInterval: 10 * time.Millisecond})
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Errorf("Expected cleanup to remove expired entry, got %d entries", n)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{MaxSize: 2})
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), 0)
	time.Sleep(time.Millisecond)
	c.Set(ctx, "b", []byte("2"), 0)
	time.Sleep(time.Millisecond)

	// Touch a so b becomes least recently used.
	c.Get(ctx, "a")
	time.Sleep(time.Millisecond)
	c.Set(ctx, "c", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); !cache.IsNotFound(err) {
		t.Errorf("Expected b to be evicted, got %v", err)
	}
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Errorf("Expected a to survive, got %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{MaxSize: 2})
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	c.Set(ctx, "a", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); err != nil {
		t.Errorf("Expected b to remain after overwriting a, got %v", err)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 0)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !cache.IsNotFound(err) {
		t.Errorf("Expected miss after delete, got %v", err)
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
}

func TestMemoryCache_InvalidKey(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{})

	if err := c.Set(context.Background(), "bad key", []byte("v"), 0); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestMemoryCache_Closed(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, cache.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := newTestCache(t, MemoryCacheConfig{MaxSize: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n*100+j)%80)
				c.Set(ctx, key, []byte("v"), 0)
				c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Expected at most 50 entries, got %d", c.Len())
	}
}
