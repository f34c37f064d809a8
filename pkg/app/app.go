// Package app wires configuration into a running ledger: store, caches,
// resilience, metrics and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"smartwallet/pkg/api"
	"smartwallet/pkg/cache"
	"smartwallet/pkg/cache/bloom"
	"smartwallet/pkg/cache/memory"
	"smartwallet/pkg/cache/redis"
	"smartwallet/pkg/chain"
	"smartwallet/pkg/config"
	"smartwallet/pkg/entities"
	"smartwallet/pkg/idempotency"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/logging"
	"smartwallet/pkg/metrics"
	metricsprom "smartwallet/pkg/metrics/prometheus"
	"smartwallet/pkg/resilience"
	memstore "smartwallet/pkg/store/memory"
	"smartwallet/pkg/store/sqlstore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config  config.Config
	Logger  *logging.Logger
	Ledger  *ledger.Service
	Store   *resilience.ResilientStore
	Metrics metrics.Collector

	registry    *prometheus.Registry
	httpMetrics *api.HTTPMetrics
	guard       *idempotency.Guard
	shared      *redis.RedisCache
	pingStore   func(ctx context.Context) error
	closers     []func() error
}

// New builds every component described by cfg.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logging.OrNop(logger)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.setupMetrics(); err != nil {
		return nil, err
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = resilience.NewResilientStore(backend, cfg.Resilience, a.Metrics, a.Logger)

	if cfg.Redis.Enabled {
		if a.shared, err = redis.NewRedisCache(cfg.Redis.Cache); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, a.shared.Close)
	}

	history, err := a.historyCache()
	if err != nil {
		return nil, err
	}

	a.Ledger, err = ledger.NewService(a.Store, entities.NewRegistry(a.Store),
		ledger.WithConfig(cfg.Ledger),
		ledger.WithLogger(a.Logger),
		ledger.WithMetrics(a.Metrics),
		ledger.WithHistoryCache(history),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Idempotency.Enabled {
		a.setupIdempotency()
	}

	a.Logger.Info("ledger ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("idempotency", cfg.Idempotency.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return a, nil
}

func (a *App) setupMetrics() error {
	if !a.Config.Metrics.Enabled {
		a.Metrics = metrics.NoOpCollector{}
		return nil
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metricsprom.NewPrometheusCollector(a.Config.Metrics.Namespace)
	if err := collector.Register(a.registry); err != nil {
		return fmt.Errorf("register ledger metrics: %w", err)
	}
	a.Metrics = collector

	a.httpMetrics = api.NewHTTPMetrics(a.Config.Metrics.Namespace)
	if err := a.httpMetrics.Register(a.registry); err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	return nil
}

func (a *App) openBackend(ctx context.Context) (resilience.Backend, error) {
	switch a.Config.Storage.Backend {
	case config.BackendSQL:
		store, err := sqlstore.Open(ctx, a.Config.Storage.SQL, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.pingStore = store.Ping
		return store, nil
	default:
		return memstore.NewStore(), nil
	}
}

// historyCache layers a process-local cache over the shared redis tier
// when one is configured.
func (a *App) historyCache() (cache.Layer, error) {
	local := memory.NewMemoryCache(memory.MemoryCacheConfig{
		Name:       "history-memory",
		MaxSize:    a.Config.Cache.MemoryMaxSize,
		DefaultTTL: a.Config.Ledger.HistoryTTL,
	})
	layers := []cache.Layer{local}
	if a.shared != nil {
		layers = append(layers, a.shared)
	}

	c, err := chain.New(layers,
		chain.WithTTLStrategy(chain.DecayingTTLStrategy{DecayFactor: a.Config.Cache.DecayFactor}),
		chain.WithWarmTTL(a.Config.Cache.WarmTTL),
		chain.WithResilience(a.Config.Resilience),
		chain.WithMetrics(a.Metrics),
		chain.WithLogger(a.Logger),
	)
	if err != nil {
		local.Close()
		return nil, err
	}
	// The shared tier is closed on its own.
	a.closers = append(a.closers, local.Close)
	return c, nil
}

// setupIdempotency stores responses in redis when it is shared between
// instances. A single instance keeps them in memory behind a bloom filter.
func (a *App) setupIdempotency() {
	cfg := a.Config.Idempotency
	var store cache.Layer
	if a.shared != nil {
		store = resilience.NewResilientLayer(a.shared, a.Config.Resilience, a.Metrics, a.Logger)
	} else {
		local := memory.NewMemoryCache(memory.MemoryCacheConfig{
			Name:       "idempotency-memory",
			MaxSize:    int(cfg.ExpectedKeys),
			DefaultTTL: cfg.TTL,
		})
		a.closers = append(a.closers, local.Close)
		store = bloom.NewBloomLayer(local, cfg.ExpectedKeys, cfg.FalsePositiveRate)
	}
	a.guard = idempotency.NewGuard(store, cfg.TTL, a.Logger)
}

// Health pings the SQL database and the redis tier when configured.
func (a *App) Health(ctx context.Context) error {
	if a.pingStore != nil {
		if err := a.pingStore(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if a.shared != nil {
		if err := a.shared.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are off.
func (a *App) MetricsHandler() http.Handler {
	if a.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Server builds the HTTP API over the wired ledger.
func (a *App) Server() *api.Server {
	opts := []api.Option{
		api.WithLogger(a.Logger),
		api.WithHealthCheck(a.Health),
	}
	if a.httpMetrics != nil {
		opts = append(opts, api.WithHTTPMetrics(a.httpMetrics), api.WithMetricsHandler(a.MetricsHandler()))
	}
	if a.guard != nil {
		opts = append(opts, api.WithIdempotency(a.guard))
	}
	return api.NewServer(a.Ledger, a.Store, a.Config.Server, opts...)
}

// Close releases every resource opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
