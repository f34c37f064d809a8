package redis

import (
	"context"
	"fmt"
	"time"

	"smartwallet/pkg/cache"

	"github.com/redis/rueidis"
)

// RedisCache is a cache.Layer backed by Redis through rueidis. It shares
// transfer histories and idempotent responses across API replicas.
type RedisCache struct {
	client rueidis.Client
	name   string
	config RedisCacheConfig
}

// RedisCacheConfig configures the Redis layer.
type RedisCacheConfig struct {
	Name string `mapstructure:"name"`
	// Addr is the Redis server address for single node mode.
	Addr string `mapstructure:"addr"`
	// ClusterAddrs enables cluster mode when set.
	ClusterAddrs []string `mapstructure:"cluster_addrs"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	// DB is the Redis database number. Cluster mode only supports 0.
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultRedisCacheConfig returns the defaults for a local Redis.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Name:         "redis",
		Addr:         "localhost:6379",
		DB:           0,
		KeyPrefix:    "smartwallet:",
		DefaultTTL:   5 * time.Minute,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisCache connects to Redis and pings it.
func NewRedisCache(config RedisCacheConfig) (*RedisCache, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr or ClusterAddrs)")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		MaxFlushDelay:    100 * time.Microsecond,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	r := &RedisCache{
		client: client,
		name:   config.Name,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := r.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return r, nil
}

func (r *RedisCache) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get returns the stored bytes or cache.ErrKeyNotFound.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	return data, nil
}

// Set stores value with an expiry. A zero ttl uses DefaultTTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	cmd := r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	return nil
}

// Name returns the layer name.
func (r *RedisCache) Name() string {
	return r.name
}

// Close closes the client.
func (r *RedisCache) Close() error {
	r.client.Close()
	return nil
}

// Ping checks connectivity; used by the readiness check.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or cache.ErrKeyNotFound.
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := r.client.Do(ctx, r.client.B().Ttl().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch seconds {
	case -2:
		return 0, cache.ErrKeyNotFound
	case -1:
		return -1, nil
	}

	return time.Duration(seconds) * time.Second, nil
}

var _ cache.Layer = (*RedisCache)(nil)
