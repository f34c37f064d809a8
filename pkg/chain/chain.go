package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartwallet/pkg/cache"
	"smartwallet/pkg/logging"
	"smartwallet/pkg/metrics"
	"smartwallet/pkg/resilience"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Chain manages multiple cache layers with fallback and warm-up. Layers are
// ordered from fastest (L1) to slowest (LN). A Chain is itself a
// cache.Layer, so the ledger can use one tier or several interchangeably.
type Chain struct {
	layers  []cache.Layer
	ttl     TTLStrategy
	warmTTL time.Duration
	sf      singleflight.Group
	logger  *logging.Logger
}

// Option configures a Chain.
type Option func(*options)

type options struct {
	ttl        TTLStrategy
	warmTTL    time.Duration
	resilience *resilience.Config
	metrics    metrics.Collector
	logger     *logging.Logger
}

// WithTTLStrategy sets how a TTL is spread across layers.
func WithTTLStrategy(s TTLStrategy) Option {
	return func(o *options) { o.ttl = s }
}

// WithWarmTTL sets the base TTL used when a lower-layer hit is copied upward.
func WithWarmTTL(ttl time.Duration) Option {
	return func(o *options) { o.warmTTL = ttl }
}

// WithResilience overrides the breaker settings of every layer. The
// per-layer timeouts still apply unless config sets its own.
func WithResilience(config resilience.Config) Option {
	return func(o *options) { o.resilience = &config }
}

// WithMetrics records layer lookups and breaker state.
func WithMetrics(collector metrics.Collector) Option {
	return func(o *options) { o.metrics = collector }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a chain over layers, fastest first. Every layer is wrapped
// with resilience protection: L1 gets a 100ms timeout, deeper layers 1s.
func New(layers []cache.Layer, opts ...Option) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	o := options{
		ttl:     UniformTTLStrategy{},
		warmTTL: time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	resilient := make([]cache.Layer, len(layers))
	for i, layer := range layers {
		config := resilience.DefaultConfig()
		if o.resilience != nil {
			config = *o.resilience
		}
		if o.resilience == nil || config.Timeout == 0 {
			if i == 0 {
				config = config.WithTimeout(100 * time.Millisecond)
			} else {
				config = config.WithTimeout(time.Second)
			}
		}
		resilient[i] = resilience.NewResilientLayer(layer, config, o.metrics, logger)
	}

	return &Chain{
		layers:  resilient,
		ttl:     o.ttl,
		warmTTL: o.warmTTL,
		logger:  logger.Named("chain"),
	}, nil
}

// Name implements cache.Layer.
func (c *Chain) Name() string {
	return "chain"
}

// Get returns the value from the first layer that has it and copies it
// into the layers above. Concurrent Gets of one key share a single
// traversal; every caller receives its own copy.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return cache.Clone(result.([]byte)), nil
}

func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	var lastErr error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			// Misses and unavailable layers both fall through to the next one.
			if !cache.IsNotFound(err) {
				c.logger.Debug("layer skipped",
					zap.String("layer", layer.Name()),
					zap.String("key", key),
					zap.Error(err),
				)
			}
			lastErr = err
			continue
		}

		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return value, nil
	}

	return nil, lastErr
}

// warmUpperLayers copies a hit at hitIndex into every faster layer.
func (c *Chain) warmUpperLayers(ctx context.Context, key string, value []byte, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.ttl.GetTTL(i, len(c.layers), c.warmTTL)
		if err := c.layers[i].Set(ctx, key, value, ttl); err != nil {
			c.logger.Debug("warm-up failed",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Set writes the value to all layers. A failing layer does not stop the
// others; the last error is returned.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var lastErr error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Set(ctx, key, value, c.ttl.GetTTL(i, len(c.layers), ttl)); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Delete removes the key from all layers. A failing layer does not stop
// the others; the last error is returned.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error
	for _, layer := range c.layers {
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes all layers and returns the last error.
func (c *Chain) Close() error {
	var lastErr error
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

// String returns a string representation of the chain.
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}

var _ cache.Layer = (*Chain)(nil)
