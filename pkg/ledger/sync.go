package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SyncMainAccountBalance recomputes the main balance from the ledger and stores it.
func (s *Service) SyncMainAccountBalance(ctx context.Context, userID string) (*Account, error) {
	return s.syncLocked(ctx, userID, Main)
}

// SyncCurrentAccountBalance recomputes the current balance from the ledger and stores it.
func (s *Service) SyncCurrentAccountBalance(ctx context.Context, userID string) (*Account, error) {
	return s.syncLocked(ctx, userID, Current)
}

// SyncAccounts recomputes both balances.
func (s *Service) SyncAccounts(ctx context.Context, userID string) (accounts *Accounts, err error) {
	start := time.Now()
	defer func() { s.observe("sync_accounts", start, err) }()

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.syncBoth(ctx, userID)
}

func (s *Service) syncLocked(ctx context.Context, userID string, category AccountCategory) (account *Account, err error) {
	start := time.Now()
	defer func() { s.observe("sync_"+string(category), start, err) }()

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.syncAccount(ctx, userID, category, nil)
}

func (s *Service) syncBoth(ctx context.Context, userID string) (*Accounts, error) {
	main, err := s.syncAccount(ctx, userID, Main, nil)
	if err != nil {
		return nil, err
	}
	current, err := s.syncAccount(ctx, userID, Current, nil)
	if err != nil {
		return nil, err
	}
	return &Accounts{Main: main, Current: current}, nil
}

// syncAccount reloads the account, recomputes its balance, applies mutate
// and saves it. A version conflict triggers one fresh attempt. Caller holds
// the user lock.
func (s *Service) syncAccount(ctx context.Context, userID string, category AccountCategory, mutate func(*Account)) (*Account, error) {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		account, err := s.store.FindAccount(ctx, userID, category)
		if err != nil {
			return nil, WrapStorage("find account", err)
		}
		if account == nil {
			return nil, ErrAccountsNotFound
		}

		balance, err := s.computeBalance(ctx, userID, category)
		if err != nil {
			return nil, err
		}

		account.Balance = balance
		account.UpdatedAt = s.now()
		if mutate != nil {
			mutate(account)
		}

		err = s.store.SaveAccount(ctx, account)
		if err == nil {
			s.metrics.RecordBalanceSync(string(category), time.Since(start))
			return account, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, WrapStorage("save account", err)
		}

		lastErr = err
		s.userLogger(userID).Warn("account changed during sync, recomputing",
			zap.String("category", string(category)),
			zap.Int64("version", account.Version),
		)
	}

	return nil, lastErr
}

// computeBalance applies the reconciliation formula:
//
//	Σ income − Σ expense of the account's own transactions
//	+ Σ completed transfers into the account − Σ completed transfers out of it
//
// Transfer companion transactions are left out of the first line; the
// transfer they accompany is counted by the second.
func (s *Service) computeBalance(ctx context.Context, userID string, category AccountCategory) (decimal.Decimal, error) {
	totals, err := s.store.SumTransactions(ctx, TransactionFilter{
		UserID:         userID,
		Account:        category.Tag(),
		ExcludeSpecial: []SpecialCategory{SpecialTransfer},
	})
	if err != nil {
		return decimal.Zero, WrapStorage("sum transactions", err)
	}

	groups, err := s.store.SumTransfers(ctx, userID)
	if err != nil {
		return decimal.Zero, WrapStorage("sum transfers", err)
	}

	balance := totals.Net()
	endpoint := category.Endpoint()
	for _, g := range groups {
		if g.Status != StatusCompleted {
			continue
		}
		if g.To == endpoint {
			balance = balance.Add(g.Total)
		}
		if g.From == endpoint {
			balance = balance.Sub(g.Total)
		}
	}

	return balance, nil
}
