package ledger_test

import (
	"errors"
	"testing"
	"time"

	"smartwallet/pkg/ledger"
	memstore "smartwallet/pkg/store/memory"
)

func TestOpenAccounts(t *testing.T) {
	f := newFixture(t)

	accounts, err := f.svc.OpenAccounts(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("OpenAccounts failed: %v", err)
	}
	if accounts.Main.Category != ledger.Main || accounts.Current.Category != ledger.Current {
		t.Errorf("Unexpected categories: %s, %s", accounts.Main.Category, accounts.Current.Category)
	}
	if !accounts.Total().IsZero() {
		t.Errorf("Expected zero total, got %s", accounts.Total())
	}

	mainID, err := f.svc.EnsureMainAccount(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("EnsureMainAccount failed: %v", err)
	}
	if mainID != accounts.Main.ID {
		t.Errorf("Expected EnsureMainAccount to return %s, got %s", accounts.Main.ID, mainID)
	}

	users, _ := f.store.ListUserIDs(f.ctx)
	if len(users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(users))
	}
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.EnsureCurrentAccount(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("EnsureCurrentAccount failed: %v", err)
	}
	second, err := f.svc.EnsureCurrentAccount(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("EnsureCurrentAccount failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected the same id, got %s and %s", first, second)
	}

	main, _ := f.svc.GetMainAccount(f.ctx, "u-1")
	if main != nil {
		t.Errorf("Expected no main account, got %+v", main)
	}

	if _, err := f.svc.EnsureMainAccount(f.ctx, ""); !errors.Is(err, ledger.ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser, got %v", err)
	}
}

func TestSync_ReconcilesTamperedBalance(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "5000", "1000")
	f.svc.BorrowFromMain(f.ctx, "u-1", d("500"), "")
	f.svc.RepayToMain(f.ctx, "u-1", d("200"), "")

	// Overwrite the stored balances with garbage.
	for _, category := range []ledger.AccountCategory{ledger.Main, ledger.Current} {
		account, _ := f.store.FindAccount(f.ctx, "u-1", category)
		account.Balance = d("123456.78")
		if err := f.store.SaveAccount(f.ctx, account); err != nil {
			t.Fatalf("SaveAccount failed: %v", err)
		}
	}

	main, err := f.svc.SyncMainAccountBalance(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("SyncMainAccountBalance failed: %v", err)
	}
	if !main.Balance.Equal(d("4700")) {
		t.Errorf("Expected Main=4700, got %s", main.Balance)
	}

	current, err := f.svc.SyncCurrentAccountBalance(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("SyncCurrentAccountBalance failed: %v", err)
	}
	if !current.Balance.Equal(d("1300")) {
		t.Errorf("Expected Current=1300, got %s", current.Balance)
	}
}

func TestSync_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "300", "-50")

	first, err := f.svc.SyncAccounts(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("SyncAccounts failed: %v", err)
	}
	second, err := f.svc.SyncAccounts(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("SyncAccounts failed: %v", err)
	}

	if !first.Main.Balance.Equal(second.Main.Balance) || !first.Current.Balance.Equal(second.Current.Balance) {
		t.Errorf("Expected identical balances, got %s/%s then %s/%s",
			first.Main.Balance, first.Current.Balance, second.Main.Balance, second.Current.Balance)
	}
	if !second.Current.Balance.Equal(d("-50")) {
		t.Errorf("Expected Current=-50, got %s", second.Current.Balance)
	}
	if second.Main.Version <= first.Main.Version {
		t.Errorf("Expected version to advance, got %d then %d", first.Main.Version, second.Main.Version)
	}
}

func TestSync_IgnoresPendingTransfersAndOrphanCompanions(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "1000", "0")

	now := time.Now()
	f.store.InsertTransfer(f.ctx, &ledger.Transfer{
		ID:     "pending-1",
		UserID: "u-1",
		From:   ledger.EndpointMain,
		To:     ledger.EndpointCurrent,
		Amount: d("400"),
		Type:   ledger.Borrow,
		Status: ledger.StatusPending,
		Date:   now,
	})
	f.store.InsertTransaction(f.ctx, &ledger.Transaction{
		ID:              "orphan-1",
		UserID:          "u-1",
		Amount:          d("75"),
		Type:            ledger.Income,
		Account:         ledger.TagCurrent,
		Category:        "transfer",
		SpecialCategory: ledger.SpecialTransfer,
		Date:            now,
	})

	if _, err := f.svc.SyncAccounts(f.ctx, "u-1"); err != nil {
		t.Fatalf("SyncAccounts failed: %v", err)
	}
	f.expectBalances("u-1", "1000", "0")
}

func TestSync_SpecialEntityTransfersOnlyTouchAccounts(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "1000", "200")

	// Transfers between an entity and an account only move the account side.
	f.store.InsertTransfer(f.ctx, &ledger.Transfer{
		ID:     "withdraw-1",
		UserID: "u-1",
		From:   ledger.EndpointGoal,
		To:     ledger.EndpointMain,
		Amount: d("50"),
		Type:   ledger.Withdraw,
		Status: ledger.StatusCompleted,
		Date:   time.Now(),
	})

	if _, err := f.svc.SyncAccounts(f.ctx, "u-1"); err != nil {
		t.Fatalf("SyncAccounts failed: %v", err)
	}
	f.expectBalances("u-1", "1050", "200")
}

func TestSync_AccountsNotFound(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.SyncMainAccountBalance(f.ctx, "ghost"); !errors.Is(err, ledger.ErrAccountsNotFound) {
		t.Errorf("Expected ErrAccountsNotFound, got %v", err)
	}
	if _, err := f.svc.SyncAccounts(f.ctx, ""); !errors.Is(err, ledger.ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser, got %v", err)
	}
}

func TestSync_RetriesOnceOnVersionConflict(t *testing.T) {
	mem := memstore.NewStore()
	faulty := &faultyStore{Store: mem}
	f := newFixtureWithStore(t, faulty, mem)
	f.open("u-1", "100", "0")

	faulty.conflicts.Store(1)
	main, err := f.svc.SyncMainAccountBalance(f.ctx, "u-1")
	if err != nil {
		t.Fatalf("Expected the retry to succeed, got %v", err)
	}
	if !main.Balance.Equal(d("100")) {
		t.Errorf("Expected Main=100, got %s", main.Balance)
	}

	faulty.conflicts.Store(2)
	_, err = f.svc.SyncMainAccountBalance(f.ctx, "u-1")
	if !errors.Is(err, ledger.ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict, got %v", err)
	}
	if ledger.IsStorage(err) {
		t.Error("Expected a version conflict not to be wrapped as a storage error")
	}
}

func TestStore_RejectsStaleSave(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "0", "0")

	stale, _ := f.store.FindAccount(f.ctx, "u-1", ledger.Main)
	fresh, _ := f.store.FindAccount(f.ctx, "u-1", ledger.Main)

	if err := f.store.SaveAccount(f.ctx, fresh); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	if err := f.store.SaveAccount(f.ctx, stale); !errors.Is(err, ledger.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}
}

func TestRecordTransaction(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "0", "0")

	tx, err := f.svc.RecordTransaction(f.ctx, "u-1", ledger.TransactionInput{
		Account:  ledger.Current,
		Type:     ledger.Expense,
		Amount:   d("12.50"),
		Category: "  groceries ",
	})
	if err != nil {
		t.Fatalf("RecordTransaction failed: %v", err)
	}
	if tx.Category != "groceries" {
		t.Errorf("Expected trimmed category, got %q", tx.Category)
	}
	if !tx.IsVisible || tx.SpecialCategory != ledger.SpecialNone {
		t.Errorf("Expected an ordinary visible transaction, got %+v", tx)
	}
	if !tx.Signed().Equal(d("-12.50")) {
		t.Errorf("Expected signed amount -12.50, got %s", tx.Signed())
	}
	f.expectBalances("u-1", "0", "-12.50")

	cases := []ledger.TransactionInput{
		{Account: "savings", Type: ledger.Income, Amount: d("1"), Category: "x"},
		{Account: ledger.Main, Type: "refund", Amount: d("1"), Category: "x"},
		{Account: ledger.Main, Type: ledger.Income, Amount: d("0"), Category: "x"},
		{Account: ledger.Main, Type: ledger.Income, Amount: d("1"), Category: " "},
	}
	for i, in := range cases {
		if _, err := f.svc.RecordTransaction(f.ctx, "u-1", in); !ledger.IsClientError(err) {
			t.Errorf("case %d: expected a client error, got %v", i, err)
		}
	}
}

func TestListTransactions_Filters(t *testing.T) {
	f := newFixture(t)
	f.open("u-1", "100", "50")
	f.svc.BorrowFromMain(f.ctx, "u-1", d("10"), "")

	current, err := f.svc.ListTransactions(f.ctx, "u-1", ledger.TransactionQuery{Account: ledger.Current})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(current) != 2 {
		t.Fatalf("Expected 2 current transactions, got %d", len(current))
	}
	if current[0].SpecialCategory != ledger.SpecialTransfer {
		t.Errorf("Expected newest first, got %+v", current[0])
	}

	transfers, _ := f.svc.ListTransactions(f.ctx, "u-1", ledger.TransactionQuery{SpecialCategory: ledger.SpecialTransfer})
	if len(transfers) != 1 {
		t.Errorf("Expected 1 transfer companion, got %d", len(transfers))
	}

	page, _ := f.svc.ListTransactions(f.ctx, "u-1", ledger.TransactionQuery{Limit: 1, Offset: 1})
	if len(page) != 1 {
		t.Errorf("Expected a page of 1, got %d", len(page))
	}
}
