package memory

import (
	"testing"
	"time"

	"smartwallet/pkg/metrics"
)

func TestMemoryCollector_Snapshot(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordOperation("repay", "success", time.Millisecond)
	mc.RecordOperation("repay", "insufficient_funds", time.Millisecond)
	mc.RecordTransfer("repay", 40)
	mc.RecordBalanceSync("main", time.Millisecond)
	mc.RecordStoreCall("find_account", true, time.Millisecond)
	mc.RecordStoreCall("find_account", false, time.Millisecond)
	mc.RecordCacheLookup("history", false, time.Millisecond)

	snap := mc.Snapshot()
	if snap.Operations["repay"].Calls != 2 {
		t.Errorf("Expected 2 repay calls, got %d", snap.Operations["repay"].Calls)
	}
	if snap.Transfers["repay"].Total != 40 {
		t.Errorf("Expected repay total 40, got %v", snap.Transfers["repay"].Total)
	}
	if snap.Syncs["main"] != 1 {
		t.Errorf("Expected 1 main sync, got %d", snap.Syncs["main"])
	}
	if snap.StoreCalls["find_account"] != 2 || snap.StoreFailures["find_account"] != 1 {
		t.Errorf("Expected 2 calls and 1 failure, got %d and %d", snap.StoreCalls["find_account"], snap.StoreFailures["find_account"])
	}
	if snap.CacheMisses["history"] != 1 {
		t.Errorf("Expected 1 cache miss, got %d", snap.CacheMisses["history"])
	}

	// The snapshot is detached from the collector.
	snap.Operations["repay"].Outcomes["success"] = 100
	if mc.Snapshot().Operations["repay"].Outcomes["success"] != 1 {
		t.Error("Expected snapshot mutations not to leak back")
	}

	mc.Reset()
	if len(mc.Snapshot().Operations) != 0 {
		t.Error("Expected Reset to clear operations")
	}
}

func TestMemoryCollector_CircuitOpens(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordCircuitState("store", metrics.CircuitOpen)
	mc.RecordCircuitState("store", metrics.CircuitOpen)
	mc.RecordCircuitState("store", metrics.CircuitHalfOpen)
	mc.RecordCircuitState("store", metrics.CircuitOpen)

	if n := mc.Snapshot().CircuitOpens["store"]; n != 2 {
		t.Errorf("Expected 2 transitions to open, got %d", n)
	}
	if mc.CircuitState("store") != metrics.CircuitOpen {
		t.Errorf("Expected state open, got %s", mc.CircuitState("store"))
	}
}
