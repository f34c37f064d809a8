package cache

import (
	"context"
	"time"
)

// Layer is a single byte-valued cache tier. Values are opaque encoded
// payloads (JSON transfer histories, replayed HTTP responses), so every
// tier stores exactly what it was given and the memory and Redis tiers
// are interchangeable.
type Layer interface {
	// Get returns the stored value, or ErrKeyNotFound on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A zero ttl uses the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics.
	Name() string

	// Close releases any resources held by the layer.
	Close() error
}

// Entry is a cached value with its expiry, used by in-process layers.
type Entry struct {
	Value      []byte
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// IsExpired reports whether the entry has expired at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// TimeToLive returns the remaining lifetime at now, or 0 once expired.
func (e *Entry) TimeToLive(now time.Time) time.Duration {
	if e.IsExpired(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// Clone returns a copy of b so callers never share backing arrays with a layer.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
