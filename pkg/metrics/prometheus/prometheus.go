package prometheus

import (
	"time"

	"smartwallet/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Ledger operations
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	transfers        *prometheus.CounterVec
	transferAmount   *prometheus.CounterVec
	syncs            *prometheus.CounterVec
	syncLatency      *prometheus.HistogramVec

	// Storage
	storeCalls   *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Caches
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &PrometheusCollector{
		namespace: namespace,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Total number of ledger operations per operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Ledger operation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"operation"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Total number of completed transfers per type",
			},
			[]string{"type"},
		),
		transferAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_amount_total",
				Help:      "Sum of completed transfer amounts per type",
			},
			[]string{"type"},
		),
		syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_syncs_total",
				Help:      "Total number of balance recomputations per account category",
			},
			[]string{"category"},
		),
		syncLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "balance_sync_duration_seconds",
				Help:      "Balance recomputation latency",
				Buckets:   latencyBuckets,
			},
			[]string{"category"},
		),
		storeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_calls_total",
				Help:      "Total number of storage calls per operation",
			},
			[]string{"operation"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of failed storage calls per operation",
			},
			[]string{"operation"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_call_duration_seconds",
				Help:      "Storage call latency",
				Buckets:   latencyBuckets,
			},
			[]string{"operation"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens per breaker",
			},
			[]string{"breaker"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits per layer",
			},
			[]string{"layer"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses per layer",
			},
			[]string{"layer"},
		),
		cacheLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_lookup_duration_seconds",
				Help:      "Cache lookup latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
	}
}

// Register registers all metrics with the given Prometheus registerer.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.operations,
		pc.operationLatency,
		pc.transfers,
		pc.transferAmount,
		pc.syncs,
		pc.syncLatency,
		pc.storeCalls,
		pc.storeErrors,
		pc.storeLatency,
		pc.circuitOpens,
		pc.circuitState,
		pc.cacheHits,
		pc.cacheMisses,
		pc.cacheLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordOperation records a ledger operation.
func (pc *PrometheusCollector) RecordOperation(operation string, outcome string, duration time.Duration) {
	pc.operations.WithLabelValues(operation, outcome).Inc()
	pc.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransfer records a completed transfer.
func (pc *PrometheusCollector) RecordTransfer(transferType string, amount float64) {
	pc.transfers.WithLabelValues(transferType).Inc()
	pc.transferAmount.WithLabelValues(transferType).Add(amount)
}

// RecordBalanceSync records a balance recomputation.
func (pc *PrometheusCollector) RecordBalanceSync(category string, duration time.Duration) {
	pc.syncs.WithLabelValues(category).Inc()
	pc.syncLatency.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordStoreCall records a storage call.
func (pc *PrometheusCollector) RecordStoreCall(operation string, success bool, duration time.Duration) {
	pc.storeCalls.WithLabelValues(operation).Inc()
	if !success {
		pc.storeErrors.WithLabelValues(operation).Inc()
	}
	pc.storeLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(name).Inc()
	}
}

// RecordCacheLookup records a cache lookup.
func (pc *PrometheusCollector) RecordCacheLookup(layer string, hit bool, duration time.Duration) {
	if hit {
		pc.cacheHits.WithLabelValues(layer).Inc()
	} else {
		pc.cacheMisses.WithLabelValues(layer).Inc()
	}
	pc.cacheLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

var _ metrics.Collector = (*PrometheusCollector)(nil)
