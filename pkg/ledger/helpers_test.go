package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/metrics/memory"
	memstore "smartwallet/pkg/store/memory"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stepClock advances one second on every call so records get distinct dates.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memstore.Store
	registry *entities.Registry
	metrics  *memory.MemoryCollector
	svc      *ledger.Service
}

func newFixture(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()
	store := memstore.NewStore()
	return newFixtureWithStore(t, store, store, opts...)
}

func newFixtureWithStore(t *testing.T, store ledger.Store, entityStore *memstore.Store, opts ...ledger.Option) *fixture {
	t.Helper()

	collector := memory.NewMemoryCollector()
	registry := entities.NewRegistry(entityStore)
	all := append([]ledger.Option{
		ledger.WithClock(newStepClock().Now),
		ledger.WithMetrics(collector),
	}, opts...)

	svc, err := ledger.NewService(store, registry, all...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	return &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    entityStore,
		registry: registry,
		metrics:  collector,
		svc:      svc,
	}
}

// open creates both accounts and seeds them with income (or expense for a
// negative amount) transactions.
func (f *fixture) open(userID string, main, current string) {
	f.t.Helper()

	if _, err := f.svc.OpenAccounts(f.ctx, userID); err != nil {
		f.t.Fatalf("OpenAccounts failed: %v", err)
	}
	f.seed(userID, ledger.Main, d(main))
	f.seed(userID, ledger.Current, d(current))
}

func (f *fixture) seed(userID string, account ledger.AccountCategory, amount decimal.Decimal) {
	f.t.Helper()
	if amount.IsZero() {
		return
	}

	dir := ledger.Income
	if amount.IsNegative() {
		dir = ledger.Expense
	}
	_, err := f.svc.RecordTransaction(f.ctx, userID, ledger.TransactionInput{
		Account:  account,
		Type:     dir,
		Amount:   amount.Abs(),
		Category: "seed",
	})
	if err != nil {
		f.t.Fatalf("RecordTransaction failed: %v", err)
	}
}

func (f *fixture) balances(userID string) (decimal.Decimal, decimal.Decimal) {
	f.t.Helper()

	main, err := f.svc.GetMainAccount(f.ctx, userID)
	if err != nil || main == nil {
		f.t.Fatalf("GetMainAccount: %v, %v", main, err)
	}
	current, err := f.svc.GetCurrentAccount(f.ctx, userID)
	if err != nil || current == nil {
		f.t.Fatalf("GetCurrentAccount: %v, %v", current, err)
	}
	return main.Balance, current.Balance
}

func (f *fixture) expectBalances(userID, main, current string) {
	f.t.Helper()

	gotMain, gotCurrent := f.balances(userID)
	if !gotMain.Equal(d(main)) {
		f.t.Errorf("Expected Main=%s, got %s", main, gotMain)
	}
	if !gotCurrent.Equal(d(current)) {
		f.t.Errorf("Expected Current=%s, got %s", current, gotCurrent)
	}
}

func (f *fixture) transfers(userID string) []*ledger.Transfer {
	f.t.Helper()
	ts, err := f.store.ListTransfers(f.ctx, ledger.TransferFilter{UserID: userID})
	if err != nil {
		f.t.Fatalf("ListTransfers failed: %v", err)
	}
	return ts
}

func (f *fixture) allTransactions(userID string) []*ledger.Transaction {
	f.t.Helper()
	txs, err := f.store.ListTransactions(f.ctx, ledger.TransactionFilter{UserID: userID})
	if err != nil {
		f.t.Fatalf("ListTransactions failed: %v", err)
	}
	return txs
}

// faultyStore wraps a store and injects failures.
type faultyStore struct {
	ledger.Store

	conflicts         atomic.Int32
	failInsert        atomic.Bool
	listTransferCalls atomic.Int32
}

func (s *faultyStore) SaveAccount(ctx context.Context, account *ledger.Account) error {
	if s.conflicts.Load() > 0 {
		s.conflicts.Add(-1)
		return ledger.ErrVersionConflict
	}
	return s.Store.SaveAccount(ctx, account)
}

func (s *faultyStore) InsertTransfer(ctx context.Context, transfer *ledger.Transfer) error {
	if s.failInsert.Load() {
		return errDiskFull
	}
	return s.Store.InsertTransfer(ctx, transfer)
}

func (s *faultyStore) ListTransfers(ctx context.Context, filter ledger.TransferFilter) ([]*ledger.Transfer, error) {
	s.listTransferCalls.Add(1)
	return s.Store.ListTransfers(ctx, filter)
}

type stringError string

func (e stringError) Error() string { return string(e) }

const errDiskFull = stringError("disk full")
