package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestStore_Accounts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if a, err := s.FindAccount(ctx, "u-1", ledger.Main); a != nil || err != nil {
		t.Errorf("Expected (nil, nil) for a missing account, got %v, %v", a, err)
	}

	account := &ledger.Account{ID: "a-1", UserID: "u-1", Category: ledger.Main}
	if err := s.CreateAccount(ctx, account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := s.CreateAccount(ctx, &ledger.Account{ID: "a-2", UserID: "u-1", Category: ledger.Main}); err == nil {
		t.Error("Expected a second main account to be rejected")
	}

	found, _ := s.FindAccount(ctx, "u-1", ledger.Main)
	found.Balance = d("99")
	again, _ := s.FindAccount(ctx, "u-1", ledger.Main)
	if !again.Balance.IsZero() {
		t.Error("Expected FindAccount to return a copy")
	}

	if err := s.SaveAccount(ctx, found); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	if found.Version != 1 {
		t.Errorf("Expected version 1 after save, got %d", found.Version)
	}
	if err := s.SaveAccount(ctx, again); !errors.Is(err, ledger.ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}

	s.CreateAccount(ctx, &ledger.Account{ID: "a-3", UserID: "u-0", Category: ledger.Current})
	ids, _ := s.ListUserIDs(ctx)
	if len(ids) != 2 || ids[0] != "u-0" || ids[1] != "u-1" {
		t.Errorf("Expected sorted [u-0 u-1], got %v", ids)
	}
}

func TestStore_TransactionsAndSums(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	txs := []*ledger.Transaction{
		{ID: "1", UserID: "u-1", Amount: d("100"), Type: ledger.Income, Account: ledger.TagMain, Date: base, IsVisible: true},
		{ID: "2", UserID: "u-1", Amount: d("30"), Type: ledger.Expense, Account: ledger.TagMain, Date: base.Add(time.Hour), IsVisible: true},
		{ID: "3", UserID: "u-1", Amount: d("20"), Type: ledger.Expense, Account: ledger.TagMain, Date: base.Add(2 * time.Hour), SpecialCategory: ledger.SpecialGoal},
		{ID: "4", UserID: "u-1", Amount: d("5"), Type: ledger.Income, Account: ledger.TagMain, Date: base.Add(3 * time.Hour), SpecialCategory: ledger.SpecialTransfer, IsVisible: true},
		{ID: "5", UserID: "u-2", Amount: d("1000"), Type: ledger.Income, Account: ledger.TagMain, Date: base},
	}
	for _, tx := range txs {
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("InsertTransaction failed: %v", err)
		}
	}

	totals, _ := s.SumTransactions(ctx, ledger.TransactionFilter{
		UserID:         "u-1",
		Account:        ledger.TagMain,
		ExcludeSpecial: []ledger.SpecialCategory{ledger.SpecialTransfer},
	})
	if !totals.Income.Equal(d("100")) || !totals.Expense.Equal(d("50")) || !totals.Net().Equal(d("50")) {
		t.Errorf("Unexpected totals: income %s, expense %s", totals.Income, totals.Expense)
	}

	visible := true
	list, _ := s.ListTransactions(ctx, ledger.TransactionFilter{UserID: "u-1", Visible: &visible})
	if len(list) != 3 || list[0].ID != "4" || list[2].ID != "1" {
		t.Errorf("Expected visible transactions newest first, got %d", len(list))
	}

	ranged, _ := s.ListTransactions(ctx, ledger.TransactionFilter{
		UserID: "u-1",
		From:   base.Add(time.Hour),
		To:     base.Add(2 * time.Hour),
	})
	if len(ranged) != 2 {
		t.Errorf("Expected 2 transactions in range, got %d", len(ranged))
	}

	page, _ := s.ListTransactions(ctx, ledger.TransactionFilter{UserID: "u-1", Limit: 2, Offset: 3})
	if len(page) != 1 || page[0].ID != "1" {
		t.Errorf("Expected the last page to hold transaction 1, got %v", page)
	}

	if err := s.InsertTransaction(ctx, &ledger.Transaction{ID: "x"}); err == nil {
		t.Error("Expected a transaction without a user to be rejected")
	}
}

func TestStore_Transfers(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	transfers := []*ledger.Transfer{
		{ID: "t1", UserID: "u-1", From: ledger.EndpointMain, To: ledger.EndpointCurrent, Amount: d("10"), Status: ledger.StatusCompleted, Date: now},
		{ID: "t2", UserID: "u-1", From: ledger.EndpointMain, To: ledger.EndpointCurrent, Amount: d("15"), Status: ledger.StatusCompleted, Date: now.Add(time.Second)},
		{ID: "t3", UserID: "u-1", From: ledger.EndpointMain, To: ledger.EndpointCurrent, Amount: d("99"), Status: ledger.StatusPending, Date: now.Add(2 * time.Second)},
		{ID: "t4", UserID: "u-1", From: ledger.EndpointCurrent, To: ledger.EndpointMain, Amount: d("7"), Status: ledger.StatusCompleted, Date: now.Add(3 * time.Second)},
	}
	for _, tr := range transfers {
		s.InsertTransfer(ctx, tr)
	}

	groups, _ := s.SumTransfers(ctx, "u-1")
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}
	if !groups[0].Total.Equal(d("25")) || groups[0].Status != ledger.StatusCompleted {
		t.Errorf("Expected first group completed 25, got %+v", groups[0])
	}

	list, _ := s.ListTransfers(ctx, ledger.TransferFilter{UserID: "u-1", Status: ledger.StatusCompleted, Limit: 2})
	if len(list) != 2 || list[0].ID != "t4" || list[1].ID != "t2" {
		t.Errorf("Expected [t4 t2], got %d items", len(list))
	}
}

func TestStore_Entities(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	goal, _ := entities.NewGoal("u-1", "Trip", d("100"), d("0"), now)
	if err := s.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal failed: %v", err)
	}
	if err := s.CreateGoal(ctx, goal); err == nil {
		t.Error("Expected a duplicate goal to be rejected")
	}

	found, _ := s.FindGoal(ctx, "u-1", goal.ID)
	found.Contributions = append(found.Contributions, entities.Contribution{ID: "c1", Amount: d("5")})
	again, _ := s.FindGoal(ctx, "u-1", goal.ID)
	if len(again.Contributions) != 0 {
		t.Error("Expected FindGoal to return a deep copy")
	}

	if g, _ := s.FindGoal(ctx, "u-2", goal.ID); g != nil {
		t.Error("Expected another user's goal to be invisible")
	}

	foreign := *found
	foreign.UserID = "u-2"
	if err := s.SaveGoal(ctx, &foreign); err == nil {
		t.Error("Expected saving under another user to fail")
	}

	older, _ := entities.NewDebt("u-1", "Old", d("1"), now.Add(-time.Hour))
	newer, _ := entities.NewDebt("u-1", "New", d("2"), now)
	s.CreateDebt(ctx, newer)
	s.CreateDebt(ctx, older)

	debts, _ := s.ListDebts(ctx, "u-1")
	if len(debts) != 2 || debts[0].Name != "Old" {
		t.Errorf("Expected debts ordered by creation, got %d", len(debts))
	}

	invs, _ := s.ListInvestments(ctx, "u-1")
	if invs == nil || len(invs) != 0 {
		t.Errorf("Expected an empty investment list, got %v", invs)
	}
}
