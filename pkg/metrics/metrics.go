package metrics

import (
	"time"
)

// Collector defines the interface for collecting ledger metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory for tests).
type Collector interface {
	// Ledger operations (borrow, repay, withdraw, contribute, rollover, ...)
	RecordOperation(operation string, outcome string, duration time.Duration)
	RecordTransfer(transferType string, amount float64)
	RecordBalanceSync(category string, duration time.Duration)

	// Storage calls made through the resilient store
	RecordStoreCall(operation string, success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)

	// History and idempotency caches
	RecordCacheLookup(layer string, hit bool, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the backend has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is a no-op implementation of Collector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

// RecordOperation does nothing.
func (NoOpCollector) RecordOperation(operation string, outcome string, duration time.Duration) {}

// RecordTransfer does nothing.
func (NoOpCollector) RecordTransfer(transferType string, amount float64) {}

// RecordBalanceSync does nothing.
func (NoOpCollector) RecordBalanceSync(category string, duration time.Duration) {}

// RecordStoreCall does nothing.
func (NoOpCollector) RecordStoreCall(operation string, success bool, duration time.Duration) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

// RecordCacheLookup does nothing.
func (NoOpCollector) RecordCacheLookup(layer string, hit bool, duration time.Duration) {}
