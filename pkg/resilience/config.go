package resilience

import (
	"fmt"
	"time"
)

// Config configures timeout and circuit breaker protection for a store or
// cache layer.
type Config struct {
	// Timeout bounds every call. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout"`

	// CircuitBreaker configures the circuit breaker behavior
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the breaker is half-open.
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Interval is the cyclic period of the closed state after which the
	// counts are cleared. Zero never clears them.
	Interval time.Duration `mapstructure:"interval"`

	// OpenTimeout is how long the breaker stays open before going half-open.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`

	// MinRequests is the number of requests in the interval before the
	// failure ratio is considered.
	MinRequests uint32 `mapstructure:"min_requests"`

	// FailureRatio trips the breaker once failures/requests reaches it.
	FailureRatio float64 `mapstructure:"failure_ratio"`

	// ReadyToTrip overrides the ratio rule when set.
	ReadyToTrip func(counts Counts) bool `mapstructure:"-"`
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig returns the defaults used for the ledger store.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:  5,
			Interval:     60 * time.Second,
			OpenTimeout:  30 * time.Second,
			MinRequests:  20,
			FailureRatio: 0.15,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("resilience: timeout must not be negative")
	}
	if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
		return fmt.Errorf("resilience: failure ratio must be in (0, 1], got %v", c.CircuitBreaker.FailureRatio)
	}
	return nil
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithOpenTimeout returns a copy of the config with the specified open-state duration.
func (c Config) WithOpenTimeout(timeout time.Duration) Config {
	c.CircuitBreaker.OpenTimeout = timeout
	return c
}

// readyToTrip returns the trip rule of the config.
func (c CircuitBreakerConfig) readyToTrip() func(Counts) bool {
	if c.ReadyToTrip != nil {
		return c.ReadyToTrip
	}
	minRequests, ratio := c.MinRequests, c.FailureRatio
	return func(counts Counts) bool {
		if counts.Requests < minRequests || counts.Requests == 0 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}
