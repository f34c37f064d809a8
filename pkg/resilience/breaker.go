package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartwallet/pkg/logging"
	"smartwallet/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timeout")
)

// IsCircuitOpen reports whether err was caused by an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeout reports whether err was caused by a call timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// guard runs calls through a circuit breaker with a per-call timeout.
type guard struct {
	cb           *gobreaker.CircuitBreaker
	timeout      time.Duration
	isSuccessful func(error) bool
	logger       *logging.Logger
}

func newGuard(name string, config Config, isSuccessful func(error) bool, collector metrics.Collector, logger *logging.Logger) *guard {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger = logging.OrNop(logger).Named("resilience").Named(name)
	trip := config.CircuitBreaker.readyToTrip()

	logger.Info("circuit breaker initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreaker.MaxRequests),
		zap.Duration("interval", config.CircuitBreaker.Interval),
		zap.Duration("open_timeout", config.CircuitBreaker.OpenTimeout),
	)

	settings := gobreaker.Settings{
		Name:         name,
		MaxRequests:  config.CircuitBreaker.MaxRequests,
		Interval:     config.CircuitBreaker.Interval,
		Timeout:      config.CircuitBreaker.OpenTimeout,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return trip(Counts{
				Requests:             counts.Requests,
				TotalSuccesses:       counts.TotalSuccesses,
				TotalFailures:        counts.TotalFailures,
				ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
				ConsecutiveFailures:  counts.ConsecutiveFailures,
			})
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, circuitState(to))
		},
	}

	return &guard{
		cb:           gobreaker.NewCircuitBreaker(settings),
		timeout:      config.Timeout,
		isSuccessful: isSuccessful,
		logger:       logger,
	}
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// run executes fn under the breaker. Breaker rejections become
// ErrCircuitOpen and deadline overruns become ErrTimeout.
func (g *guard) run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.logger.Warn("circuit breaker open - request rejected", zap.String("operation", operation))
		return fmt.Errorf("%w: %s", ErrCircuitOpen, operation)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.logger.Warn("operation timeout",
			zap.String("operation", operation),
			zap.Duration("timeout", g.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("%w: %s", ErrTimeout, operation)
	}
	if !g.isSuccessful(err) {
		g.logger.Error("operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}
	return err
}

// state returns the breaker state.
func (g *guard) state() metrics.CircuitState {
	return circuitState(g.cb.State())
}
