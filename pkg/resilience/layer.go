package resilience

import (
	"context"
	"time"

	"smartwallet/pkg/cache"
	"smartwallet/pkg/logging"
	"smartwallet/pkg/metrics"
)

// ResilientLayer wraps a cache.Layer with circuit breaker and timeout
// protection. Misses do not count as failures.
type ResilientLayer struct {
	layer   cache.Layer
	guard   *guard
	metrics metrics.Collector
}

// NewResilientLayer wraps layer. collector and logger may be nil.
func NewResilientLayer(layer cache.Layer, config Config, collector metrics.Collector, logger *logging.Logger) *ResilientLayer {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &ResilientLayer{
		layer:   layer,
		guard:   newGuard(layer.Name(), config, isCacheSuccess, collector, logger),
		metrics: collector,
	}
}

func isCacheSuccess(err error) bool {
	return err == nil || cache.IsNotFound(err)
}

// Name returns the name of the underlying layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Get reads key through the breaker and records the lookup.
func (rl *ResilientLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	var value []byte
	err := rl.guard.run(ctx, "get", func(ctx context.Context) error {
		var err error
		value, err = rl.layer.Get(ctx, key)
		return err
	})

	rl.metrics.RecordCacheLookup(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set writes key through the breaker.
func (rl *ResilientLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return rl.guard.run(ctx, "set", func(ctx context.Context) error {
		return rl.layer.Set(ctx, key, value, ttl)
	})
}

// Delete removes key through the breaker.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	return rl.guard.run(ctx, "delete", func(ctx context.Context) error {
		return rl.layer.Delete(ctx, key)
	})
}

// State returns the breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	return rl.guard.state()
}

// Close closes the underlying layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}

var _ cache.Layer = (*ResilientLayer)(nil)
