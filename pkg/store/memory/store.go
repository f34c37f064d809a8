package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Store is an in-memory ledger and entity store. It is safe for concurrent
// use and hands out copies so callers never share state with it. Data is
// lost on restart; use sqlstore for persistence.
type Store struct {
	mu sync.RWMutex

	accounts     map[accountKey]*ledger.Account
	transactions []*ledger.Transaction
	transfers    []*ledger.Transfer

	debts       map[string]*entities.Debt
	investments map[string]*entities.Investment
	goals       map[string]*entities.Goal
}

type accountKey struct {
	userID   string
	category ledger.AccountCategory
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:    make(map[accountKey]*ledger.Account),
		debts:       make(map[string]*entities.Debt),
		investments: make(map[string]*entities.Investment),
		goals:       make(map[string]*entities.Goal),
	}
}

func copyAccount(a *ledger.Account) *ledger.Account {
	c := *a
	if a.LastRolloverAt != nil {
		t := *a.LastRolloverAt
		c.LastRolloverAt = &t
	}
	return &c
}

// FindAccount returns the user's account of the category or (nil, nil).
func (s *Store) FindAccount(ctx context.Context, userID string, category ledger.AccountCategory) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountKey{userID, category}]
	if !ok {
		return nil, nil
	}
	return copyAccount(a), nil
}

// CreateAccount inserts account. A user can own one account per category.
func (s *Store) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if account.ID == "" || account.UserID == "" {
		return fmt.Errorf("account id and user id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{account.UserID, account.Category}
	if _, exists := s.accounts[key]; exists {
		return fmt.Errorf("%s account already exists for user %s", account.Category, account.UserID)
	}
	s.accounts[key] = copyAccount(account)
	return nil
}

// SaveAccount stores account if its version matches and bumps the version.
func (s *Store) SaveAccount(ctx context.Context, account *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{account.UserID, account.Category}
	stored, ok := s.accounts[key]
	if !ok || stored.ID != account.ID {
		return fmt.Errorf("account %s not found", account.ID)
	}
	if stored.Version != account.Version {
		return ledger.ErrVersionConflict
	}

	account.Version++
	s.accounts[key] = copyAccount(account)
	return nil
}

// ListUserIDs returns the ids of all users owning an account, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.accounts {
		seen[key.userID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// InsertTransaction appends tx.
func (s *Store) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if tx.ID == "" || tx.UserID == "" {
		return fmt.Errorf("transaction id and user id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *tx
	s.transactions = append(s.transactions, &c)
	return nil
}

// ListTransactions returns matching transactions, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.Transaction
	// Walk backwards so equal dates keep newest-inserted first after the stable sort.
	for i := len(s.transactions) - 1; i >= 0; i-- {
		tx := s.transactions[i]
		if !filter.Matches(tx) {
			continue
		}
		c := *tx
		result = append(result, &c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})

	return paginate(result, filter.Offset, filter.Limit), nil
}

// SumTransactions totals matching amounts per direction. Limit and Offset are ignored.
func (s *Store) SumTransactions(ctx context.Context, filter ledger.TransactionFilter) (ledger.DirectionTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := ledger.DirectionTotals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, tx := range s.transactions {
		if !filter.Matches(tx) {
			continue
		}
		switch tx.Type {
		case ledger.Income:
			totals.Income = totals.Income.Add(tx.Amount)
		case ledger.Expense:
			totals.Expense = totals.Expense.Add(tx.Amount)
		}
	}
	return totals, nil
}

// InsertTransfer appends transfer.
func (s *Store) InsertTransfer(ctx context.Context, transfer *ledger.Transfer) error {
	if transfer.ID == "" || transfer.UserID == "" {
		return fmt.Errorf("transfer id and user id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *transfer
	s.transfers = append(s.transfers, &c)
	return nil
}

// ListTransfers returns matching transfers, newest first.
func (s *Store) ListTransfers(ctx context.Context, filter ledger.TransferFilter) ([]*ledger.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.Transfer
	for i := len(s.transfers) - 1; i >= 0; i-- {
		t := s.transfers[i]
		if !filter.Matches(t) {
			continue
		}
		c := *t
		result = append(result, &c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})

	return paginate(result, 0, filter.Limit), nil
}

// SumTransfers totals the user's transfers per (from, to, status).
func (s *Store) SumTransfers(ctx context.Context, userID string) ([]ledger.TransferTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type groupKey struct {
		from, to ledger.Endpoint
		status   ledger.TransferStatus
	}
	groups := make(map[groupKey]decimal.Decimal)
	var order []groupKey

	for _, t := range s.transfers {
		if t.UserID != userID {
			continue
		}
		key := groupKey{t.From, t.To, t.Status}
		total, ok := groups[key]
		if !ok {
			order = append(order, key)
		}
		groups[key] = total.Add(t.Amount)
	}

	result := make([]ledger.TransferTotal, 0, len(order))
	for _, key := range order {
		result = append(result, ledger.TransferTotal{
			From:   key.from,
			To:     key.to,
			Status: key.status,
			Total:  groups[key],
		})
	}
	return result, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ ledger.Store = (*Store)(nil)
