package ledger

import (
	"context"
	"fmt"
	"time"

	"smartwallet/pkg/cache"
	"smartwallet/pkg/logging"
	"smartwallet/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Config holds ledger behaviour settings.
type Config struct {
	// WithdrawalDestination is the account credited by WithdrawFromSpecial.
	WithdrawalDestination AccountCategory `mapstructure:"withdrawal_destination"`

	// HistoryTTL is how long a cached transfer history stays valid.
	HistoryTTL time.Duration `mapstructure:"history_ttl"`

	// RolloverConcurrency bounds the number of users RolloverAll processes at once.
	RolloverConcurrency int `mapstructure:"rollover_concurrency"`
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{
		WithdrawalDestination: Current,
		HistoryTTL:            5 * time.Minute,
		RolloverConcurrency:   4,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseAccountCategory(string(c.WithdrawalDestination)); err != nil {
		return fmt.Errorf("ledger config: withdrawal destination: %w", err)
	}
	if c.HistoryTTL < 0 {
		return fmt.Errorf("ledger config: history ttl must not be negative")
	}
	if c.RolloverConcurrency < 1 {
		return fmt.Errorf("ledger config: rollover concurrency must be at least 1")
	}
	return nil
}

// Service is the ledger: account bootstrap, balance synchronization,
// transfers between accounts and special entities, and month-end rollover.
// Mutations of one user are serialized within the process; the account
// version check guards against writers in other processes.
type Service struct {
	store    Store
	entities SpecialEntities
	history  cache.Layer
	keys     *cache.KeyPattern
	config   Config
	logger   *logging.Logger
	metrics  metrics.Collector
	locks    *userLocks
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the ledger configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(s *Service) { s.metrics = collector }
}

// WithHistoryCache caches transfer histories in layer.
func WithHistoryCache(layer cache.Layer) Option {
	return func(s *Service) { s.history = layer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service over store and entities.
func NewService(store Store, entities SpecialEntities, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	if entities == nil {
		return nil, fmt.Errorf("ledger: special entities are required")
	}

	s := &Service{
		store:    store,
		entities: entities,
		keys:     cache.NewKeyPattern("ledger", ":"),
		config:   DefaultConfig(),
		metrics:  metrics.NoOpCollector{},
		locks:    newUserLocks(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	s.logger = logging.OrNop(s.logger).Named("ledger")
	if s.metrics == nil {
		s.metrics = metrics.NoOpCollector{}
	}

	return s, nil
}

// Config returns the active configuration.
func (s *Service) Config() Config {
	return s.config
}

// observe records the outcome of a ledger operation.
func (s *Service) observe(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = ClassifyError(err)
	}
	s.metrics.RecordOperation(operation, outcome, time.Since(start))
}

// lockUser serializes mutations for userID until the returned func is called.
func (s *Service) lockUser(ctx context.Context, userID string) (func(), error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	return s.locks.acquire(ctx, userID)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

func (s *Service) userLogger(userID string) *logging.Logger {
	return s.logger.ForUser(userID)
}
