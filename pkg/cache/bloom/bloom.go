package bloom

import (
	"context"
	"sync"
	"time"

	"smartwallet/pkg/cache"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomLayer puts a bloom filter in front of a cache.Layer so lookups of
// keys that were never written skip the layer entirely. The filter only
// knows about keys written through this process, so it must not front a
// layer shared with other writers.
type BloomLayer struct {
	layer             cache.Layer
	filter            *bloom.BloomFilter
	expectedItems     uint
	falsePositiveRate float64
	mu                sync.RWMutex

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

// NewBloomLayer wraps layer with a filter sized for expectedItems.
func NewBloomLayer(layer cache.Layer, expectedItems uint, falsePositiveRate float64) *BloomLayer {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &BloomLayer{
		layer:             layer,
		filter:            bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
	}
}

// Name returns the name of the wrapped layer.
func (bl *BloomLayer) Name() string {
	return "bloom(" + bl.layer.Name() + ")"
}

// Get answers cache.ErrKeyNotFound without touching the wrapped layer when
// the filter has never seen key.
func (bl *BloomLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bl.mu.Lock()
	bl.totalQueries++
	if !bl.filter.TestString(key) {
		bl.bloomRejected++
		bl.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}
	bl.mu.Unlock()

	value, err := bl.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		bl.mu.Lock()
		bl.falsePositives++
		bl.mu.Unlock()
	}

	return value, err
}

// Set records key in the filter and writes through.
func (bl *BloomLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bl.mu.Lock()
	bl.filter.AddString(key)
	bl.mu.Unlock()

	return bl.layer.Set(ctx, key, value, ttl)
}

// Delete removes key from the wrapped layer. Bloom filters cannot forget,
// so later lookups of key still reach the layer.
func (bl *BloomLayer) Delete(ctx context.Context, key string) error {
	return bl.layer.Delete(ctx, key)
}

// Close closes the wrapped layer.
func (bl *BloomLayer) Close() error {
	return bl.layer.Close()
}

// Reset clears the filter and counters.
func (bl *BloomLayer) Reset() {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.filter = bloom.NewWithEstimates(bl.expectedItems, bl.falsePositiveRate)
	bl.totalQueries = 0
	bl.bloomRejected = 0
	bl.falsePositives = 0
}

// Stats returns statistics about the bloom filter.
func (bl *BloomLayer) Stats() BloomStats {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	rejectionRate := 0.0
	falsePositiveRate := 0.0

	if bl.totalQueries > 0 {
		rejectionRate = float64(bl.bloomRejected) / float64(bl.totalQueries)
		queried := bl.totalQueries - bl.bloomRejected
		if queried > 0 {
			falsePositiveRate = float64(bl.falsePositives) / float64(queried)
		}
	}

	return BloomStats{
		TotalQueries:      bl.totalQueries,
		BloomRejected:     bl.bloomRejected,
		FalsePositives:    bl.falsePositives,
		RejectionRate:     rejectionRate,
		FalsePositiveRate: falsePositiveRate,
		FilterCapacity:    bl.filter.Cap(),
	}
}

// BloomStats holds statistics about bloom filter performance.
type BloomStats struct {
	TotalQueries      uint64
	BloomRejected     uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
	FilterCapacity    uint
}

var _ cache.Layer = (*BloomLayer)(nil)
