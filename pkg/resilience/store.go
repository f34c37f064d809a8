package resilience

import (
	"context"
	"errors"
	"time"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/logging"
	"smartwallet/pkg/metrics"
)

// Backend is a store serving both the ledger and the special entities.
type Backend interface {
	ledger.Store
	entities.Store
}

// ResilientStore guards every call of a Backend with a circuit breaker and
// a timeout and records it as a store call. Failures surface as
// *ledger.StorageError; version conflicts and cancellations pass through
// and do not count against the breaker.
type ResilientStore struct {
	backend Backend
	guard   *guard
	metrics metrics.Collector
}

// NewResilientStore wraps backend. collector and logger may be nil.
func NewResilientStore(backend Backend, config Config, collector metrics.Collector, logger *logging.Logger) *ResilientStore {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	return &ResilientStore{
		backend: backend,
		guard:   newGuard("store", config, isStoreSuccess, collector, logger),
		metrics: collector,
	}
}

func isStoreSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ledger.ErrVersionConflict) ||
		errors.Is(err, context.Canceled)
}

// State returns the breaker state.
func (s *ResilientStore) State() metrics.CircuitState {
	return s.guard.state()
}

func (s *ResilientStore) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.guard.run(ctx, operation, fn)
	s.metrics.RecordStoreCall(operation, isStoreSuccess(err), time.Since(start))
	return ledger.WrapStorage(operation, err)
}

// FindAccount implements ledger.AccountStore.
func (s *ResilientStore) FindAccount(ctx context.Context, userID string, category ledger.AccountCategory) (account *ledger.Account, err error) {
	err = s.call(ctx, "find_account", func(ctx context.Context) error {
		account, err = s.backend.FindAccount(ctx, userID, category)
		return err
	})
	return account, err
}

// CreateAccount implements ledger.AccountStore.
func (s *ResilientStore) CreateAccount(ctx context.Context, account *ledger.Account) error {
	return s.call(ctx, "create_account", func(ctx context.Context) error {
		return s.backend.CreateAccount(ctx, account)
	})
}

// SaveAccount implements ledger.AccountStore.
func (s *ResilientStore) SaveAccount(ctx context.Context, account *ledger.Account) error {
	return s.call(ctx, "save_account", func(ctx context.Context) error {
		return s.backend.SaveAccount(ctx, account)
	})
}

// ListUserIDs implements ledger.AccountStore.
func (s *ResilientStore) ListUserIDs(ctx context.Context) (ids []string, err error) {
	err = s.call(ctx, "list_user_ids", func(ctx context.Context) error {
		ids, err = s.backend.ListUserIDs(ctx)
		return err
	})
	return ids, err
}

// InsertTransaction implements ledger.TransactionStore.
func (s *ResilientStore) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	return s.call(ctx, "insert_transaction", func(ctx context.Context) error {
		return s.backend.InsertTransaction(ctx, tx)
	})
}

// ListTransactions implements ledger.TransactionStore.
func (s *ResilientStore) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) (txs []*ledger.Transaction, err error) {
	err = s.call(ctx, "list_transactions", func(ctx context.Context) error {
		txs, err = s.backend.ListTransactions(ctx, filter)
		return err
	})
	return txs, err
}

// SumTransactions implements ledger.TransactionStore.
func (s *ResilientStore) SumTransactions(ctx context.Context, filter ledger.TransactionFilter) (totals ledger.DirectionTotals, err error) {
	err = s.call(ctx, "sum_transactions", func(ctx context.Context) error {
		totals, err = s.backend.SumTransactions(ctx, filter)
		return err
	})
	return totals, err
}

// InsertTransfer implements ledger.TransferStore.
func (s *ResilientStore) InsertTransfer(ctx context.Context, transfer *ledger.Transfer) error {
	return s.call(ctx, "insert_transfer", func(ctx context.Context) error {
		return s.backend.InsertTransfer(ctx, transfer)
	})
}

// ListTransfers implements ledger.TransferStore.
func (s *ResilientStore) ListTransfers(ctx context.Context, filter ledger.TransferFilter) (transfers []*ledger.Transfer, err error) {
	err = s.call(ctx, "list_transfers", func(ctx context.Context) error {
		transfers, err = s.backend.ListTransfers(ctx, filter)
		return err
	})
	return transfers, err
}

// SumTransfers implements ledger.TransferStore.
func (s *ResilientStore) SumTransfers(ctx context.Context, userID string) (totals []ledger.TransferTotal, err error) {
	err = s.call(ctx, "sum_transfers", func(ctx context.Context) error {
		totals, err = s.backend.SumTransfers(ctx, userID)
		return err
	})
	return totals, err
}

// CreateDebt implements entities.Store.
func (s *ResilientStore) CreateDebt(ctx context.Context, d *entities.Debt) error {
	return s.call(ctx, "create_debt", func(ctx context.Context) error {
		return s.backend.CreateDebt(ctx, d)
	})
}

// FindDebt implements entities.Store.
func (s *ResilientStore) FindDebt(ctx context.Context, userID, id string) (debt *entities.Debt, err error) {
	err = s.call(ctx, "find_debt", func(ctx context.Context) error {
		debt, err = s.backend.FindDebt(ctx, userID, id)
		return err
	})
	return debt, err
}

// SaveDebt implements entities.Store.
func (s *ResilientStore) SaveDebt(ctx context.Context, d *entities.Debt) error {
	return s.call(ctx, "save_debt", func(ctx context.Context) error {
		return s.backend.SaveDebt(ctx, d)
	})
}

// ListDebts implements entities.Store.
func (s *ResilientStore) ListDebts(ctx context.Context, userID string) (debts []*entities.Debt, err error) {
	err = s.call(ctx, "list_debts", func(ctx context.Context) error {
		debts, err = s.backend.ListDebts(ctx, userID)
		return err
	})
	return debts, err
}

// CreateInvestment implements entities.Store.
func (s *ResilientStore) CreateInvestment(ctx context.Context, inv *entities.Investment) error {
	return s.call(ctx, "create_investment", func(ctx context.Context) error {
		return s.backend.CreateInvestment(ctx, inv)
	})
}

// FindInvestment implements entities.Store.
func (s *ResilientStore) FindInvestment(ctx context.Context, userID, id string) (inv *entities.Investment, err error) {
	err = s.call(ctx, "find_investment", func(ctx context.Context) error {
		inv, err = s.backend.FindInvestment(ctx, userID, id)
		return err
	})
	return inv, err
}

// SaveInvestment implements entities.Store.
func (s *ResilientStore) SaveInvestment(ctx context.Context, inv *entities.Investment) error {
	return s.call(ctx, "save_investment", func(ctx context.Context) error {
		return s.backend.SaveInvestment(ctx, inv)
	})
}

// ListInvestments implements entities.Store.
func (s *ResilientStore) ListInvestments(ctx context.Context, userID string) (invs []*entities.Investment, err error) {
	err = s.call(ctx, "list_investments", func(ctx context.Context) error {
		invs, err = s.backend.ListInvestments(ctx, userID)
		return err
	})
	return invs, err
}

// CreateGoal implements entities.Store.
func (s *ResilientStore) CreateGoal(ctx context.Context, g *entities.Goal) error {
	return s.call(ctx, "create_goal", func(ctx context.Context) error {
		return s.backend.CreateGoal(ctx, g)
	})
}

// FindGoal implements entities.Store.
func (s *ResilientStore) FindGoal(ctx context.Context, userID, id string) (goal *entities.Goal, err error) {
	err = s.call(ctx, "find_goal", func(ctx context.Context) error {
		goal, err = s.backend.FindGoal(ctx, userID, id)
		return err
	})
	return goal, err
}

// SaveGoal implements entities.Store.
func (s *ResilientStore) SaveGoal(ctx context.Context, g *entities.Goal) error {
	return s.call(ctx, "save_goal", func(ctx context.Context) error {
		return s.backend.SaveGoal(ctx, g)
	})
}

// ListGoals implements entities.Store.
func (s *ResilientStore) ListGoals(ctx context.Context, userID string) (goals []*entities.Goal, err error) {
	err = s.call(ctx, "list_goals", func(ctx context.Context) error {
		goals, err = s.backend.ListGoals(ctx, userID)
		return err
	})
	return goals, err
}

var _ Backend = (*ResilientStore)(nil)
