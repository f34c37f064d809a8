package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStore persists the per-user accounts.
type AccountStore interface {
	// FindAccount returns the user's account of the given category,
	// or (nil, nil) when it does not exist.
	FindAccount(ctx context.Context, userID string, category AccountCategory) (*Account, error)

	// CreateAccount inserts a new account.
	CreateAccount(ctx context.Context, account *Account) error

	// SaveAccount writes balance and rollover fields. It fails with
	// ErrVersionConflict when account.Version no longer matches the stored
	// row and increments account.Version on success.
	SaveAccount(ctx context.Context, account *Account) error

	// ListUserIDs returns every user owning at least one account.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// TransactionStore persists transactions.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx *Transaction) error

	// ListTransactions returns matching transactions, newest first.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)

	// SumTransactions totals matching transaction amounts per direction.
	SumTransactions(ctx context.Context, filter TransactionFilter) (DirectionTotals, error)
}

// TransferStore persists transfers.
type TransferStore interface {
	InsertTransfer(ctx context.Context, transfer *Transfer) error

	// ListTransfers returns matching transfers, newest first.
	ListTransfers(ctx context.Context, filter TransferFilter) ([]*Transfer, error)

	// SumTransfers totals the user's transfer amounts per (from, to, status).
	SumTransfers(ctx context.Context, userID string) ([]TransferTotal, error)
}

// Store is the full ledger persistence contract.
type Store interface {
	AccountStore
	TransactionStore
	TransferStore
}

// TransactionFilter selects transactions. UserID is required; zero values
// of the other fields mean "any".
type TransactionFilter struct {
	UserID   string
	Account  AccountTag
	Type     Direction
	Category string

	// SpecialCategory keeps only transactions with this tag.
	SpecialCategory SpecialCategory
	// ExcludeSpecial drops transactions carrying any of these tags.
	ExcludeSpecial []SpecialCategory

	// Visible, when set, keeps only transactions with that visibility.
	Visible *bool

	// From and To bound Date, both inclusive.
	From time.Time
	To   time.Time

	Limit  int
	Offset int
}

// Matches reports whether tx passes the filter. Stores that filter in
// memory share this so every backend agrees on the semantics.
func (f TransactionFilter) Matches(tx *Transaction) bool {
	if tx.UserID != f.UserID {
		return false
	}
	if f.Account != "" && tx.Account != f.Account {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.SpecialCategory != SpecialNone && tx.SpecialCategory != f.SpecialCategory {
		return false
	}
	for _, sc := range f.ExcludeSpecial {
		if tx.SpecialCategory == sc {
			return false
		}
	}
	if f.Visible != nil && tx.IsVisible != *f.Visible {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	return true
}

// DirectionTotals is the result of SumTransactions.
type DirectionTotals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Net returns income minus expense.
func (d DirectionTotals) Net() decimal.Decimal {
	return d.Income.Sub(d.Expense)
}

// TransferFilter selects transfers. UserID is required.
type TransferFilter struct {
	UserID string
	From   Endpoint
	To     Endpoint
	Type   TransferType
	Status TransferStatus
	Limit  int
}

// Matches reports whether t passes the filter.
func (f TransferFilter) Matches(t *Transfer) bool {
	if t.UserID != f.UserID {
		return false
	}
	if f.From != "" && t.From != f.From {
		return false
	}
	if f.To != "" && t.To != f.To {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// TransferTotal is one group of SumTransfers.
type TransferTotal struct {
	From   Endpoint
	To     Endpoint
	Status TransferStatus
	Total  decimal.Decimal
}
