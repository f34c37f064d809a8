package memory

import (
	"sync"
	"time"

	"smartwallet/pkg/metrics"
)

// MemoryCollector implements metrics.Collector in memory, for tests and the /metrics/json endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	operations    map[string]*OperationMetrics
	transfers     map[string]*TransferMetrics
	syncs         map[string]int64
	storeCalls    map[string]int64
	storeFailures map[string]int64
	circuits      map[string]metrics.CircuitState
	circuitOpens  map[string]int64
	cacheHits     map[string]int64
	cacheMisses   map[string]int64
}

// OperationMetrics holds counts for a single ledger operation.
type OperationMetrics struct {
	Calls     int64
	Outcomes  map[string]int64
	Latencies []time.Duration
}

// TransferMetrics holds counts for a single transfer type.
type TransferMetrics struct {
	Count int64
	Total float64
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.reset()
	return mc
}

func (mc *MemoryCollector) reset() {
	mc.operations = make(map[string]*OperationMetrics)
	mc.transfers = make(map[string]*TransferMetrics)
	mc.syncs = make(map[string]int64)
	mc.storeCalls = make(map[string]int64)
	mc.storeFailures = make(map[string]int64)
	mc.circuits = make(map[string]metrics.CircuitState)
	mc.circuitOpens = make(map[string]int64)
	mc.cacheHits = make(map[string]int64)
	mc.cacheMisses = make(map[string]int64)
}

// RecordOperation records a ledger operation and its outcome.
func (mc *MemoryCollector) RecordOperation(operation string, outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	om, ok := mc.operations[operation]
	if !ok {
		om = &OperationMetrics{Outcomes: make(map[string]int64)}
		mc.operations[operation] = om
	}
	om.Calls++
	om.Outcomes[outcome]++
	om.Latencies = append(om.Latencies, duration)
}

// RecordTransfer records a completed transfer.
func (mc *MemoryCollector) RecordTransfer(transferType string, amount float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	tm, ok := mc.transfers[transferType]
	if !ok {
		tm = &TransferMetrics{}
		mc.transfers[transferType] = tm
	}
	tm.Count++
	tm.Total += amount
}

// RecordBalanceSync records a balance recomputation.
func (mc *MemoryCollector) RecordBalanceSync(category string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.syncs[category]++
}

// RecordStoreCall records a storage call.
func (mc *MemoryCollector) RecordStoreCall(operation string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.storeCalls[operation]++
	if !success {
		mc.storeFailures[operation]++
	}
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	old := mc.circuits[name]
	mc.circuits[name] = state

	// Count transitions to open
	if old != metrics.CircuitOpen && state == metrics.CircuitOpen {
		mc.circuitOpens[name]++
	}
}

// RecordCacheLookup records a cache lookup.
func (mc *MemoryCollector) RecordCacheLookup(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.cacheHits[layer]++
	} else {
		mc.cacheMisses[layer]++
	}
}

// Snapshot is a copy of the collected metrics.
type Snapshot struct {
	Operations    map[string]OperationSnapshot `json:"operations"`
	Transfers     map[string]TransferMetrics   `json:"transfers"`
	Syncs         map[string]int64             `json:"syncs"`
	StoreCalls    map[string]int64             `json:"store_calls"`
	StoreFailures map[string]int64             `json:"store_failures"`
	CircuitOpens  map[string]int64             `json:"circuit_opens"`
	CacheHits     map[string]int64             `json:"cache_hits"`
	CacheMisses   map[string]int64             `json:"cache_misses"`
}

// OperationSnapshot is the exported view of OperationMetrics.
type OperationSnapshot struct {
	Calls    int64            `json:"calls"`
	Outcomes map[string]int64 `json:"outcomes"`
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Snapshot{
		Operations:    make(map[string]OperationSnapshot, len(mc.operations)),
		Transfers:     make(map[string]TransferMetrics, len(mc.transfers)),
		Syncs:         copyCounts(mc.syncs),
		StoreCalls:    copyCounts(mc.storeCalls),
		StoreFailures: copyCounts(mc.storeFailures),
		CircuitOpens:  copyCounts(mc.circuitOpens),
		CacheHits:     copyCounts(mc.cacheHits),
		CacheMisses:   copyCounts(mc.cacheMisses),
	}
	for name, om := range mc.operations {
		s.Operations[name] = OperationSnapshot{Calls: om.Calls, Outcomes: copyCounts(om.Outcomes)}
	}
	for name, tm := range mc.transfers {
		s.Transfers[name] = *tm
	}
	return s
}

// CircuitState returns the last recorded state of the named breaker.
func (mc *MemoryCollector) CircuitState(name string) metrics.CircuitState {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.circuits[name]
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.reset()
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ metrics.Collector = (*MemoryCollector)(nil)
