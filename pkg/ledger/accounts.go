package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EnsureMainAccount returns the id of the user's main account, creating it
// on first access.
func (s *Service) EnsureMainAccount(ctx context.Context, userID string) (string, error) {
	return s.ensureAccountID(ctx, userID, Main)
}

// EnsureCurrentAccount returns the id of the user's current account,
// creating it on first access.
func (s *Service) EnsureCurrentAccount(ctx context.Context, userID string) (string, error) {
	return s.ensureAccountID(ctx, userID, Current)
}

func (s *Service) ensureAccountID(ctx context.Context, userID string, category AccountCategory) (string, error) {
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return "", err
	}
	defer unlock()

	account, err := s.ensureAccount(ctx, userID, category)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

// ensureAccount gets or creates the account. Caller holds the user lock.
func (s *Service) ensureAccount(ctx context.Context, userID string, category AccountCategory) (*Account, error) {
	account, err := s.store.FindAccount(ctx, userID, category)
	if err != nil {
		return nil, WrapStorage("find account", err)
	}
	if account != nil {
		return account, nil
	}

	now := s.now()
	account = &Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Category:  category,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		// Another process may have created it first.
		existing, findErr := s.store.FindAccount(ctx, userID, category)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, WrapStorage("create account", err)
	}

	s.userLogger(userID).Info("account created",
		zap.String("category", string(category)),
		zap.String("account_id", account.ID),
	)
	return account, nil
}

// GetMainAccount returns the user's main account, or nil when it does not exist.
func (s *Service) GetMainAccount(ctx context.Context, userID string) (*Account, error) {
	return s.getAccount(ctx, userID, Main)
}

// GetCurrentAccount returns the user's current account, or nil when it does not exist.
func (s *Service) GetCurrentAccount(ctx context.Context, userID string) (*Account, error) {
	return s.getAccount(ctx, userID, Current)
}

func (s *Service) getAccount(ctx context.Context, userID string, category AccountCategory) (*Account, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	account, err := s.store.FindAccount(ctx, userID, category)
	if err != nil {
		return nil, WrapStorage("find account", err)
	}
	return account, nil
}

// Accounts is the pair of accounts every user owns.
type Accounts struct {
	Main    *Account `json:"main"`
	Current *Account `json:"current"`
}

// Total returns the combined balance of both accounts.
func (a Accounts) Total() decimal.Decimal {
	return a.Main.Balance.Add(a.Current.Balance)
}

// OpenAccounts ensures both accounts exist and returns them freshly synced.
func (s *Service) OpenAccounts(ctx context.Context, userID string) (accounts *Accounts, err error) {
	start := time.Now()
	defer func() { s.observe("open_accounts", start, err) }()

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, category := range []AccountCategory{Main, Current} {
		if _, err := s.ensureAccount(ctx, userID, category); err != nil {
			return nil, err
		}
	}
	return s.syncBoth(ctx, userID)
}

// requireAccounts returns both accounts or ErrAccountsNotFound.
func (s *Service) requireAccounts(ctx context.Context, userID string) (*Accounts, error) {
	main, err := s.store.FindAccount(ctx, userID, Main)
	if err != nil {
		return nil, WrapStorage("find account", err)
	}
	current, err := s.store.FindAccount(ctx, userID, Current)
	if err != nil {
		return nil, WrapStorage("find account", err)
	}
	if main == nil || current == nil {
		return nil, ErrAccountsNotFound
	}
	return &Accounts{Main: main, Current: current}, nil
}
