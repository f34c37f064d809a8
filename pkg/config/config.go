package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"smartwallet/pkg/api"
	"smartwallet/pkg/cache/redis"
	"smartwallet/pkg/idempotency"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/logging"
	"smartwallet/pkg/resilience"
	"smartwallet/pkg/store/sqlstore"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SMARTWALLET_SERVER_ADDRESS.
const EnvPrefix = "SMARTWALLET"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
)

// Config is the full service configuration.
type Config struct {
	Server      api.ServerConfig   `mapstructure:"server"`
	Logging     logging.Config     `mapstructure:"logging"`
	Ledger      ledger.Config      `mapstructure:"ledger"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Redis       RedisConfig        `mapstructure:"redis"`
	Cache       CacheConfig        `mapstructure:"cache"`
	Resilience  resilience.Config  `mapstructure:"resilience"`
	Idempotency idempotency.Config `mapstructure:"idempotency"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
}

// StorageConfig selects the ledger store.
type StorageConfig struct {
	// Backend is "memory" or "sql".
	Backend string          `mapstructure:"backend"`
	SQL     sqlstore.Config `mapstructure:"sql"`
}

// RedisConfig enables the shared cache tier.
type RedisConfig struct {
	Enabled bool                   `mapstructure:"enabled"`
	Cache   redis.RedisCacheConfig `mapstructure:",squash"`
}

// CacheConfig sizes the process-local cache tier and spreads TTLs across tiers.
type CacheConfig struct {
	MemoryMaxSize int `mapstructure:"memory_max_size"`

	// DecayFactor shortens the TTL of faster tiers; 0 keeps it uniform.
	DecayFactor float64       `mapstructure:"decay_factor"`
	WarmTTL     time.Duration `mapstructure:"warm_ttl"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server:      api.DefaultServerConfig(),
		Logging:     logging.DefaultConfig(),
		Ledger:      ledger.DefaultConfig(),
		Storage:     StorageConfig{Backend: BackendMemory, SQL: sqlstore.DefaultConfig()},
		Redis:       RedisConfig{Enabled: false, Cache: redis.DefaultRedisCacheConfig()},
		Cache:       CacheConfig{MemoryMaxSize: 10000, DecayFactor: 0.5, WarmTTL: time.Minute},
		Resilience:  resilience.DefaultConfig(),
		Idempotency: idempotency.DefaultConfig(),
		Metrics:     MetricsConfig{Enabled: true, Namespace: "smartwallet"},
	}
}

// Load reads configuration from defaults, an optional config file and the
// environment, in increasing priority. A .env file in the working
// directory is loaded into the environment first. configFile falls back
// to $SMARTWALLET_CONFIG, then to smartwallet.{yaml,json,toml} in the
// working directory or /etc/smartwallet.
func Load(configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("smartwallet")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/smartwallet")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQL:
		if err := c.Storage.SQL.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	if err := c.Resilience.Validate(); err != nil {
		return err
	}
	if c.Cache.DecayFactor < 0 || c.Cache.DecayFactor >= 1 {
		return fmt.Errorf("config: cache decay factor must be in [0, 1), got %v", c.Cache.DecayFactor)
	}
	if c.Redis.Enabled && c.Redis.Cache.Addr == "" && len(c.Redis.Cache.ClusterAddrs) == 0 {
		return fmt.Errorf("config: redis is enabled but no address is set")
	}
	return nil
}

// setDefaults registers every key so environment overrides apply even when
// no config file mentions them.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_paths", d.Logging.OutputPaths)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.enable_caller", d.Logging.EnableCaller)

	v.SetDefault("ledger.withdrawal_destination", string(d.Ledger.WithdrawalDestination))
	v.SetDefault("ledger.history_ttl", d.Ledger.HistoryTTL)
	v.SetDefault("ledger.rollover_concurrency", d.Ledger.RolloverConcurrency)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.sql.driver", d.Storage.SQL.Driver)
	v.SetDefault("storage.sql.dsn", d.Storage.SQL.DSN)
	v.SetDefault("storage.sql.max_open_conns", d.Storage.SQL.MaxOpenConns)
	v.SetDefault("storage.sql.max_idle_conns", d.Storage.SQL.MaxIdleConns)
	v.SetDefault("storage.sql.conn_max_lifetime", d.Storage.SQL.ConnMaxLifetime)
	v.SetDefault("storage.sql.migrate", d.Storage.SQL.Migrate)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.name", d.Redis.Cache.Name)
	v.SetDefault("redis.addr", d.Redis.Cache.Addr)
	v.SetDefault("redis.cluster_addrs", d.Redis.Cache.ClusterAddrs)
	v.SetDefault("redis.username", d.Redis.Cache.Username)
	v.SetDefault("redis.password", d.Redis.Cache.Password)
	v.SetDefault("redis.db", d.Redis.Cache.DB)
	v.SetDefault("redis.key_prefix", d.Redis.Cache.KeyPrefix)
	v.SetDefault("redis.default_ttl", d.Redis.Cache.DefaultTTL)
	v.SetDefault("redis.dial_timeout", d.Redis.Cache.DialTimeout)
	v.SetDefault("redis.write_timeout", d.Redis.Cache.WriteTimeout)

	v.SetDefault("cache.memory_max_size", d.Cache.MemoryMaxSize)
	v.SetDefault("cache.decay_factor", d.Cache.DecayFactor)
	v.SetDefault("cache.warm_ttl", d.Cache.WarmTTL)

	v.SetDefault("resilience.timeout", d.Resilience.Timeout)
	v.SetDefault("resilience.circuit_breaker.max_requests", d.Resilience.CircuitBreaker.MaxRequests)
	v.SetDefault("resilience.circuit_breaker.interval", d.Resilience.CircuitBreaker.Interval)
	v.SetDefault("resilience.circuit_breaker.open_timeout", d.Resilience.CircuitBreaker.OpenTimeout)
	v.SetDefault("resilience.circuit_breaker.min_requests", d.Resilience.CircuitBreaker.MinRequests)
	v.SetDefault("resilience.circuit_breaker.failure_ratio", d.Resilience.CircuitBreaker.FailureRatio)

	v.SetDefault("idempotency.enabled", d.Idempotency.Enabled)
	v.SetDefault("idempotency.ttl", d.Idempotency.TTL)
	v.SetDefault("idempotency.expected_keys", d.Idempotency.ExpectedKeys)
	v.SetDefault("idempotency.false_positive_rate", d.Idempotency.FalsePositiveRate)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}
