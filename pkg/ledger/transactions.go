package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionInput is an ordinary income or expense recorded by the user.
type TransactionInput struct {
	Account     AccountCategory `json:"account"`
	Type        Direction       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	// Date defaults to now.
	Date time.Time `json:"date"`
}

// Validate checks the input at the boundary.
func (in TransactionInput) Validate() error {
	if _, err := ParseAccountCategory(string(in.Account)); err != nil {
		return err
	}
	if _, err := ParseDirection(string(in.Type)); err != nil {
		return err
	}
	if err := validateAmount(in.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(in.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidKind)
	}
	return nil
}

// RecordTransaction appends a visible transaction to one of the user's
// accounts and re-syncs that account.
func (s *Service) RecordTransaction(ctx context.Context, userID string, in TransactionInput) (tx *Transaction, err error) {
	start := time.Now()
	defer func() { s.observe("record_transaction", start, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.requireAccounts(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}

	tx = &Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      in.Amount,
		Type:        in.Type,
		Account:     in.Account.Tag(),
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
		Date:        date,
		IsVisible:   true,
		CreatedAt:   now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return nil, WrapStorage("insert transaction", err)
	}

	if _, err := s.syncAccount(ctx, userID, in.Account, nil); err != nil {
		return nil, err
	}

	s.userLogger(userID).Debug("transaction recorded",
		zap.String("transaction_id", tx.ID),
		zap.String("account", string(in.Account)),
		zap.String("type", string(in.Type)),
	)
	return tx, nil
}

// TransactionQuery filters ListTransactions. Hidden special transactions
// are left out unless IncludeHidden is set.
type TransactionQuery struct {
	Account         AccountCategory
	Type            Direction
	Category        string
	SpecialCategory SpecialCategory
	From            time.Time
	To              time.Time
	IncludeHidden   bool
	Limit           int
	Offset          int
}

// ListTransactions returns the user's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, q TransactionQuery) ([]*Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	filter := TransactionFilter{
		UserID:          userID,
		Account:         q.Account.Tag(),
		Type:            q.Type,
		Category:        q.Category,
		SpecialCategory: q.SpecialCategory,
		From:            q.From,
		To:              q.To,
		Limit:           q.Limit,
		Offset:          q.Offset,
	}
	if !q.IncludeHidden {
		visible := true
		filter.Visible = &visible
	}

	txs, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, WrapStorage("list transactions", err)
	}
	return txs, nil
}
