package ledger_test

import (
	"context"
	"errors"
	"testing"

	"smartwallet/pkg/ledger"
)

func TestRollover_Surplus(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "800")

	result, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("PerformMonthEndRollover failed: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("Expected status success, got %s", result.Status)
	}
	if !result.Amount.Equal(d("800")) {
		t.Errorf("Expected amount 800, got %s", result.Amount)
	}
	f.expectBalances("u-1", "5800", "0")

	ts := f.transfers("u-1")
	if len(ts) != 1 {
		t.Fatalf("Expected 1 transfer, got %d", len(ts))
	}
	if ts[0].Type != ledger.Deposit || ts[0].From != ledger.EndpointCurrent || ts[0].To != ledger.EndpointMain {
		t.Errorf("Unexpected surplus transfer: %+v", ts[0])
	}
	if ts[0].ID != result.TransferID {
		t.Errorf("Expected transfer id %s, got %s", ts[0].ID, result.TransferID)
	}

	var tag ledger.TransferTag
	for _, tx := range f.allTransactions("u-1") {
		if tx.TransferID == result.TransferID {
			tag = tx.TransferType
		}
	}
	if tag != ledger.TagRolloverSurplus {
		t.Errorf("Expected companion tag %s, got %q", ledger.TagRolloverSurplus, tag)
	}
}

func TestRollover_Deficit(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "-300")

	result, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("PerformMonthEndRollover failed: %v", err)
	}
	if !result.Amount.Equal(d("-300")) {
		t.Errorf("Expected amount -300, got %s", result.Amount)
	}
	f.expectBalances("u-1", "4700", "0")

	ts := f.transfers("u-1")
	if len(ts) != 1 || ts[0].Type != ledger.Borrow || !ts[0].Amount.Equal(d("300")) {
		t.Fatalf("Expected one borrow of 300, got %+v", ts)
	}
}

func TestRollover_DeficitMayOverdrawMain(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "-300")

	if _, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1"); err != nil {
		t.Fatalf("PerformMonthEndRollover failed: %v", err)
	}
	f.expectBalances("u-1", "-200", "0")
}

func TestRollover_ZeroBalance(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "0")

	result, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("PerformMonthEndRollover failed: %v", err)
	}
	if !result.Amount.IsZero() || result.TransferID != "" {
		t.Errorf("Expected an empty rollover, got %+v", result)
	}
	if n := len(f.transfers("u-1")); n != 0 {
		t.Errorf("Expected no transfers, got %d", n)
	}

	current, _ := f.svc.GetCurrentAccount(f.ctx, "u-1")
	if current.LastRolloverAt == nil {
		t.Error("Expected LastRolloverAt to be stamped")
	}
}

func TestRollover_RepeatIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "1000", "250")

	if _, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1"); err != nil {
		t.Fatalf("first rollover failed: %v", err)
	}
	first, _ := f.svc.GetCurrentAccount(f.ctx, "u-1")

	result, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("second rollover failed: %v", err)
	}
	if !result.Amount.IsZero() {
		t.Errorf("Expected second rollover to move nothing, got %s", result.Amount)
	}
	if n := len(f.transfers("u-1")); n != 1 {
		t.Errorf("Expected 1 transfer after two rollovers, got %d", n)
	}
	f.expectBalances("u-1", "1250", "0")

	second, _ := f.svc.GetCurrentAccount(f.ctx, "u-1")
	if !second.LastRolloverAt.After(*first.LastRolloverAt) {
		t.Errorf("Expected LastRolloverAt to advance, got %v then %v", first.LastRolloverAt, second.LastRolloverAt)
	}
}

func TestRollover_PreservesTotal(t *testing.T) {
	for _, current := range []string{"0.01", "-0.01", "999.99", "-4321.5"} {
		t.Run(current, func(t *testing.T) {
			f := newFixture(t)
			f.open("u-1", "10000", current)

			before, _ := f.svc.SyncAccounts(f.ctx, "u-1")
			if _, err := f.svc.PerformMonthEndRollover(f.ctx, "u-1"); err != nil {
				t.Fatalf("PerformMonthEndRollover failed: %v", err)
			}
			after, _ := f.svc.SyncAccounts(f.ctx, "u-1")

			if !before.Total().Equal(after.Total()) {
				t.Errorf("Expected total %s, got %s", before.Total(), after.Total())
			}
			if !after.Current.Balance.IsZero() {
				t.Errorf("Expected Current=0, got %s", after.Current.Balance)
			}
		})
	}
}

func TestRolloverAll(t *testing.T) {
	f := newFixture(t)
	f.open("alice", "100", "40")
	f.open("bob", "100", "-60")
	f.open("carol", "100", "0")

	// dave only has a main account, so his rollover fails.
	if _, err := f.svc.EnsureMainAccount(f.ctx, "dave"); err != nil {
		t.Fatalf("EnsureMainAccount failed: %v", err)
	}

	report, err := f.svc.RolloverAll(f.ctx)
	if err != nil {
		t.Fatalf("RolloverAll failed: %v", err)
	}
	if report.Users != 4 || report.Succeeded != 3 || report.Failed != 1 {
		t.Errorf("Expected 4 users, 3 succeeded, 1 failed; got %+v", report)
	}

	for _, r := range report.Results {
		if r.UserID == "dave" {
			if !errors.Is(r.Err, ledger.ErrAccountsNotFound) || r.Error == "" {
				t.Errorf("Expected dave to fail with ErrAccountsNotFound, got %v", r.Err)
			}
		}
	}

	f.expectBalances("alice", "140", "0")
	f.expectBalances("bob", "40", "0")
	f.expectBalances("carol", "100", "0")
}

func TestRolloverAll_Canceled(t *testing.T) {
	f := newFixture(t)
	f.open("alice", "100", "40")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.RolloverAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
