package ledger_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"
	memstore "smartwallet/pkg/store/memory"

	"github.com/shopspring/decimal"
)

func TestBorrowFromMain(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")

	transfer, err := f.svc.BorrowFromMain(f.ctx, "u-1", d("500"), "")
	if err != nil {
		t.Fatalf("BorrowFromMain failed: %v", err)
	}

	f.expectBalances("u-1", "4500", "1500")

	if transfer.From != ledger.EndpointMain || transfer.To != ledger.EndpointCurrent {
		t.Errorf("Expected main->current, got %s->%s", transfer.From, transfer.To)
	}
	if transfer.Type != ledger.Borrow {
		t.Errorf("Expected type borrow, got %s", transfer.Type)
	}
	if transfer.Status != ledger.StatusCompleted {
		t.Errorf("Expected status completed, got %s", transfer.Status)
	}

	var companion *ledger.Transaction
	for _, tx := range f.allTransactions("u-1") {
		if tx.TransferID == transfer.ID {
			companion = tx
		}
	}
	if companion == nil {
		t.Fatal("Expected a companion transaction")
	}
	if companion.Account != ledger.TagCurrent || companion.Type != ledger.Income {
		t.Errorf("Expected current income, got %s %s", companion.Account, companion.Type)
	}
	if companion.SpecialCategory != ledger.SpecialTransfer || companion.TransferType != ledger.TagBorrow {
		t.Errorf("Expected transfer/borrow tags, got %s/%s", companion.SpecialCategory, companion.TransferType)
	}
	if !companion.IsVisible {
		t.Error("Expected companion transaction to be visible")
	}
}

func TestBorrowThenRepay(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")

	if _, err := f.svc.BorrowFromMain(f.ctx, "u-1", d("500"), ""); err != nil {
		t.Fatalf("BorrowFromMain failed: %v", err)
	}
	transfer, err := f.svc.RepayToMain(f.ctx, "u-1", d("200"), "paying back")
	if err != nil {
		t.Fatalf("RepayToMain failed: %v", err)
	}

	f.expectBalances("u-1", "4700", "1300")

	if transfer.Type != ledger.Repay || transfer.From != ledger.EndpointCurrent || transfer.To != ledger.EndpointMain {
		t.Errorf("Unexpected repay transfer: %+v", transfer)
	}
	if transfer.Description != "paying back" {
		t.Errorf("Expected description to be kept, got %q", transfer.Description)
	}
}

func TestBorrowRepayConservation(t *testing.T) {
	amounts := []string{"0.01", "1", "999.99", "5000"}

	for _, amount := range amounts {
		t.Run(amount, func(t *testing.T) {
			f := newFixture(t)
			f.open("u-1", "5000", "123.45")

			if _, err := f.svc.BorrowFromMain(f.ctx, "u-1", d(amount), ""); err != nil {
				t.Fatalf("BorrowFromMain failed: %v", err)
			}
			if _, err := f.svc.RepayToMain(f.ctx, "u-1", d(amount), ""); err != nil {
				t.Fatalf("RepayToMain failed: %v", err)
			}

			f.expectBalances("u-1", "5000", "123.45")
		})
	}
}

func TestBorrowFromMain_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")
	before := len(f.allTransactions("u-1"))

	_, err := f.svc.BorrowFromMain(f.ctx, "u-1", d("5000.01"), "")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	var ife *ledger.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("Expected *InsufficientFundsError, got %T", err)
	}
	if ife.Source != "main" || !ife.Available.Equal(d("5000")) || !ife.Requested.Equal(d("5000.01")) {
		t.Errorf("Unexpected error detail: %+v", ife)
	}

	if n := len(f.transfers("u-1")); n != 0 {
		t.Errorf("Expected no transfers, got %d", n)
	}
	if n := len(f.allTransactions("u-1")); n != before {
		t.Errorf("Expected %d transactions, got %d", before, n)
	}
	f.expectBalances("u-1", "5000", "1000")
}

func TestRepayToMain_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "100")

	_, err := f.svc.RepayToMain(f.ctx, "u-1", d("100.50"), "")
	var ife *ledger.InsufficientFundsError
	if !errors.As(err, &ife) || ife.Source != "current" {
		t.Fatalf("Expected insufficient funds in current, got %v", err)
	}
	if n := len(f.transfers("u-1")); n != 0 {
		t.Errorf("Expected no transfers, got %d", n)
	}
}

func TestTransfers_AccountsNotFound(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.BorrowFromMain(f.ctx, "ghost", d("1"), ""); !errors.Is(err, ledger.ErrAccountsNotFound) {
		t.Errorf("Borrow: expected ErrAccountsNotFound, got %v", err)
	}
	if _, err := f.svc.RepayToMain(f.ctx, "ghost", d("1"), ""); !errors.Is(err, ledger.ErrAccountsNotFound) {
		t.Errorf("Repay: expected ErrAccountsNotFound, got %v", err)
	}
	if _, err := f.svc.PerformMonthEndRollover(f.ctx, "ghost"); !errors.Is(err, ledger.ErrAccountsNotFound) {
		t.Errorf("Rollover: expected ErrAccountsNotFound, got %v", err)
	}

	// Only the main account exists.
	if _, err := f.svc.EnsureMainAccount(f.ctx, "half"); err != nil {
		t.Fatalf("EnsureMainAccount failed: %v", err)
	}
	if _, err := f.svc.BorrowFromMain(f.ctx, "half", d("1"), ""); !errors.Is(err, ledger.ErrAccountsNotFound) {
		t.Errorf("Expected ErrAccountsNotFound with a missing current account, got %v", err)
	}
}

func TestTransfers_InvalidInput(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "100")

	for _, amount := range []decimal.Decimal{decimal.Zero, d("-5")} {
		if _, err := f.svc.BorrowFromMain(f.ctx, "u-1", amount, ""); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	if _, err := f.svc.BorrowFromMain(f.ctx, "", d("1"), ""); !errors.Is(err, ledger.ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser, got %v", err)
	}

	_, err := f.svc.WithdrawFromSpecial(f.ctx, "u-1", ledger.SpecialKind("car"), "x", d("1"), "")
	if !errors.Is(err, ledger.ErrInvalidKind) {
		t.Errorf("Expected ErrInvalidKind, got %v", err)
	}
}

func TestRepayToMain_ConcurrentCallsCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "0", "1000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RepayToMain(f.ctx, "u-1", d("200"), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 || rejected != 5 {
		t.Errorf("Expected 5 successes and 5 rejections, got %d and %d", succeeded, rejected)
	}
	f.expectBalances("u-1", "1000", "0")
}

func createInvestment(t *testing.T, f *fixture, userID, value string) *entities.Investment {
	t.Helper()
	inv, err := entities.NewInvestment(userID, "Index fund", d(value), time.Now())
	if err != nil {
		t.Fatalf("NewInvestment failed: %v", err)
	}
	if err := f.store.CreateInvestment(f.ctx, inv); err != nil {
		t.Fatalf("CreateInvestment failed: %v", err)
	}
	return inv
}

func createDebt(t *testing.T, f *fixture, userID, balance string) *entities.Debt {
	t.Helper()
	debt, err := entities.NewDebt(userID, "Credit line", d(balance), time.Now())
	if err != nil {
		t.Fatalf("NewDebt failed: %v", err)
	}
	if err := f.store.CreateDebt(f.ctx, debt); err != nil {
		t.Fatalf("CreateDebt failed: %v", err)
	}
	return debt
}

func createGoal(t *testing.T, f *fixture, userID, target, current string) *entities.Goal {
	t.Helper()
	goal, err := entities.NewGoal(userID, "Holiday", d(target), d(current), time.Now())
	if err != nil {
		t.Fatalf("NewGoal failed: %v", err)
	}
	if err := f.store.CreateGoal(f.ctx, goal); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	return goal
}

func TestWithdrawFromSpecial_Investment(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")
	inv := createInvestment(t, f, "u-1", "1000")

	transfer, err := f.svc.WithdrawFromSpecial(f.ctx, "u-1", ledger.KindInvestment, inv.ID, d("400"), "")
	if err != nil {
		t.Fatalf("WithdrawFromSpecial failed: %v", err)
	}

	if transfer.From != ledger.EndpointInvestment || transfer.To != ledger.EndpointCurrent {
		t.Errorf("Expected investment->current, got %s->%s", transfer.From, transfer.To)
	}
	if transfer.Type != ledger.Withdraw || transfer.LinkedEntityID != inv.ID {
		t.Errorf("Unexpected transfer: %+v", transfer)
	}

	stored, _ := f.store.FindInvestment(f.ctx, "u-1", inv.ID)
	if !stored.CurrentValue.Equal(d("600")) {
		t.Errorf("Expected investment value 600, got %s", stored.CurrentValue)
	}
	f.expectBalances("u-1", "5000", "1400")
}

func TestWithdrawFromSpecial_InsufficientEntityBalance(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")
	goal := createGoal(t, f, "u-1", "2000", "300")

	_, err := f.svc.WithdrawFromSpecial(f.ctx, "u-1", ledger.KindGoal, goal.ID, d("300.01"), "")
	var ife *ledger.InsufficientFundsError
	if !errors.As(err, &ife) || ife.Source != "goal" {
		t.Fatalf("Expected insufficient funds in goal, got %v", err)
	}

	stored, _ := f.store.FindGoal(f.ctx, "u-1", goal.ID)
	if !stored.CurrentAmount.Equal(d("300")) {
		t.Errorf("Expected goal untouched at 300, got %s", stored.CurrentAmount)
	}
	if n := len(f.transfers("u-1")); n != 0 {
		t.Errorf("Expected no transfers, got %d", n)
	}
}

func TestWithdrawFromSpecial_DebtGrows(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "0", "0")
	debt := createDebt(t, f, "u-1", "1000")

	if _, err := f.svc.WithdrawFromSpecial(f.ctx, "u-1", ledger.KindDebt, debt.ID, d("250"), ""); err != nil {
		t.Fatalf("WithdrawFromSpecial failed: %v", err)
	}

	stored, _ := f.store.FindDebt(f.ctx, "u-1", debt.ID)
	if !stored.CurrentBalance.Equal(d("1250")) {
		t.Errorf("Expected debt balance 1250, got %s", stored.CurrentBalance)
	}
	f.expectBalances("u-1", "0", "250")
}

func TestWithdrawFromSpecial_ConfiguredDestination(t *testing.T) {
	cfg := ledger.DefaultConfig()
	cfg.WithdrawalDestination = ledger.Main

	f := newFixture(t, ledger.WithConfig(cfg))
	f.open("u-1", "100", "100")
	inv := createInvestment(t, f, "u-1", "500")

	transfer, err := f.svc.WithdrawFromSpecial(f.ctx, "u-1", ledger.KindInvestment, inv.ID, d("50"), "")
	if err != nil {
		t.Fatalf("WithdrawFromSpecial failed: %v", err)
	}
	if transfer.To != ledger.EndpointMain {
		t.Errorf("Expected destination main, got %s", transfer.To)
	}
	f.expectBalances("u-1", "150", "100")
}

func TestWithdrawFromSpecial_EntityNotFound(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "100")
	other := createInvestment(t, f, "someone-else", "500")

	for _, id := range []string{"missing", other.ID, ""} {
		_, err := f.svc.WithdrawFromSpecial(f.ctx, "u-1", ledger.KindInvestment, id, d("10"), "")
		if !errors.Is(err, ledger.ErrEntityNotFound) {
			t.Errorf("id %q: expected ErrEntityNotFound, got %v", id, err)
		}
	}
	if n := len(f.transfers("u-1")); n != 0 {
		t.Errorf("Expected no transfers, got %d", n)
	}
}

func TestProcessSpecialContribution_Debt(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")
	debt := createDebt(t, f, "u-1", "1000")

	result, err := f.svc.ProcessSpecialContribution(f.ctx, "u-1", ledger.KindDebt, debt.ID, d("300"), "")
	if err != nil {
		t.Fatalf("ProcessSpecialContribution failed: %v", err)
	}
	if !result.Success {
		t.Error("Expected success")
	}
	if !result.EntityBalance.Equal(d("700")) {
		t.Errorf("Expected entity balance 700, got %s", result.EntityBalance)
	}

	stored, _ := f.store.FindDebt(f.ctx, "u-1", debt.ID)
	if len(stored.Payments) != 1 {
		t.Fatalf("Expected 1 payment, got %d", len(stored.Payments))
	}
	p := stored.Payments[0]
	if !p.Amount.Equal(d("300")) || !p.Principal.Equal(d("300")) || !p.Interest.IsZero() {
		t.Errorf("Expected full principal payment, got %+v", p)
	}

	f.expectBalances("u-1", "4700", "1000")

	visible, _ := f.svc.ListTransactions(f.ctx, "u-1", ledger.TransactionQuery{})
	for _, tx := range visible {
		if tx.ID == result.TransactionID {
			t.Error("Expected contribution transaction to be hidden from the default list")
		}
	}

	all, _ := f.svc.ListTransactions(f.ctx, "u-1", ledger.TransactionQuery{IncludeHidden: true})
	var found *ledger.Transaction
	for _, tx := range all {
		if tx.ID == result.TransactionID {
			found = tx
		}
	}
	if found == nil {
		t.Fatal("Expected contribution transaction with IncludeHidden")
	}
	if found.SpecialCategory != ledger.SpecialDebt || found.Type != ledger.Expense || found.Account != ledger.TagMain {
		t.Errorf("Unexpected contribution transaction: %+v", found)
	}
	if found.LinkedEntityID != debt.ID {
		t.Errorf("Expected link to %s, got %s", debt.ID, found.LinkedEntityID)
	}
}

func TestProcessSpecialContribution_InvestmentAndGoal(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "1000", "0")
	inv := createInvestment(t, f, "u-1", "100")
	goal := createGoal(t, f, "u-1", "500", "0")

	if _, err := f.svc.ProcessSpecialContribution(f.ctx, "u-1", ledger.KindInvestment, inv.ID, d("250"), ""); err != nil {
		t.Fatalf("investment contribution failed: %v", err)
	}
	if _, err := f.svc.ProcessSpecialContribution(f.ctx, "u-1", ledger.KindGoal, goal.ID, d("500"), ""); err != nil {
		t.Fatalf("goal contribution failed: %v", err)
	}

	storedInv, _ := f.store.FindInvestment(f.ctx, "u-1", inv.ID)
	if !storedInv.CurrentValue.Equal(d("350")) {
		t.Errorf("Expected investment 350, got %s", storedInv.CurrentValue)
	}
	storedGoal, _ := f.store.FindGoal(f.ctx, "u-1", goal.ID)
	if !storedGoal.CurrentAmount.Equal(d("500")) || len(storedGoal.Contributions) != 1 {
		t.Errorf("Expected goal at 500 with 1 contribution, got %s with %d", storedGoal.CurrentAmount, len(storedGoal.Contributions))
	}
	if !storedGoal.Reached() {
		t.Error("Expected goal to be reached")
	}

	f.expectBalances("u-1", "250", "0")
}

func TestProcessSpecialContribution_InsufficientMain(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "5000")
	goal := createGoal(t, f, "u-1", "500", "0")

	_, err := f.svc.ProcessSpecialContribution(f.ctx, "u-1", ledger.KindGoal, goal.ID, d("100.01"), "")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	stored, _ := f.store.FindGoal(f.ctx, "u-1", goal.ID)
	if !stored.CurrentAmount.IsZero() {
		t.Errorf("Expected goal untouched, got %s", stored.CurrentAmount)
	}
}

func TestProcessSpecialContribution_EntityNotFound(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "0")
	before := len(f.allTransactions("u-1"))

	_, err := f.svc.ProcessSpecialContribution(f.ctx, "u-1", ledger.KindDebt, "missing", d("10"), "")
	if !errors.Is(err, ledger.ErrEntityNotFound) {
		t.Fatalf("Expected ErrEntityNotFound, got %v", err)
	}
	if n := len(f.allTransactions("u-1")); n != before {
		t.Errorf("Expected no new transactions, got %d", n-before)
	}
	f.expectBalances("u-1", "100", "0")
}

func TestTransfers_StorageErrorSurfaces(t *testing.T) {
	mem := memstore.NewStore()
	faulty := &faultyStore{Store: mem}
	f := newFixtureWithStore(t, faulty, mem)
	f.open("u-1", "100", "0")

	faulty.failInsert.Store(true)
	_, err := f.svc.BorrowFromMain(f.ctx, "u-1", d("10"), "")
	if !ledger.IsStorage(err) {
		t.Fatalf("Expected a StorageError, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("Expected the cause to be kept, got %v", err)
	}

	snap := f.metrics.Snapshot()
	if snap.Operations["borrow"].Outcomes["storage"] != 1 {
		t.Errorf("Expected 1 storage outcome for borrow, got %v", snap.Operations["borrow"].Outcomes)
	}
}

func TestTransfers_Metrics(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "0")

	f.svc.BorrowFromMain(f.ctx, "u-1", d("40"), "")
	f.svc.BorrowFromMain(f.ctx, "u-1", d("400"), "")

	snap := f.metrics.Snapshot()
	borrow := snap.Operations["borrow"]
	if borrow.Calls != 2 {
		t.Errorf("Expected 2 borrow calls, got %d", borrow.Calls)
	}
	if borrow.Outcomes["success"] != 1 || borrow.Outcomes["insufficient_funds"] != 1 {
		t.Errorf("Unexpected outcomes: %v", borrow.Outcomes)
	}
	if tm := snap.Transfers["borrow"]; tm.Count != 1 || tm.Total != 40 {
		t.Errorf("Expected 1 borrow transfer of 40, got %+v", tm)
	}
}
