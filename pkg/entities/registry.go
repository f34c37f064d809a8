package entities

import (
	"context"
	"fmt"
	"time"

	"smartwallet/pkg/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Registry resolves special entities by kind for the transfer engine.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Load returns the entity of the given kind, or ledger.ErrEntityNotFound.
func (r *Registry) Load(ctx context.Context, userID string, kind ledger.SpecialKind, id string) (ledger.SpecialEntity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty %s id", ledger.ErrEntityNotFound, kind)
	}

	var (
		entity ledger.SpecialEntity
		found  bool
		err    error
	)

	switch kind {
	case ledger.KindDebt:
		var d *Debt
		if d, err = r.store.FindDebt(ctx, userID, id); d != nil {
			entity, found = &debtEntity{d}, true
		}
	case ledger.KindInvestment:
		var inv *Investment
		if inv, err = r.store.FindInvestment(ctx, userID, id); inv != nil {
			entity, found = &investmentEntity{inv}, true
		}
	case ledger.KindGoal:
		var g *Goal
		if g, err = r.store.FindGoal(ctx, userID, id); g != nil {
			entity, found = &goalEntity{g}, true
		}
	default:
		return nil, fmt.Errorf("%w: entity type %q", ledger.ErrInvalidKind, kind)
	}

	if err != nil {
		return nil, ledger.WrapStorage("find "+string(kind), err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s %s", ledger.ErrEntityNotFound, kind, id)
	}
	return entity, nil
}

// Save persists an entity returned by Load.
func (r *Registry) Save(ctx context.Context, userID string, entity ledger.SpecialEntity) error {
	var err error
	switch e := entity.(type) {
	case *debtEntity:
		err = r.store.SaveDebt(ctx, e.d)
	case *investmentEntity:
		err = r.store.SaveInvestment(ctx, e.inv)
	case *goalEntity:
		err = r.store.SaveGoal(ctx, e.g)
	default:
		return fmt.Errorf("%w: unsupported entity %T", ledger.ErrInvalidKind, entity)
	}
	return ledger.WrapStorage("save "+string(entity.Kind()), err)
}

type debtEntity struct{ d *Debt }

func (e *debtEntity) ID() string               { return e.d.ID }
func (e *debtEntity) Kind() ledger.SpecialKind { return ledger.KindDebt }
func (e *debtEntity) Balance() decimal.Decimal { return e.d.CurrentBalance }

// ApplyWithdrawal borrows against the debt: the outstanding balance grows.
func (e *debtEntity) ApplyWithdrawal(amount decimal.Decimal, at time.Time) error {
	e.d.CurrentBalance = e.d.CurrentBalance.Add(amount)
	e.d.UpdatedAt = at
	return nil
}

// ApplyContribution pays the debt down and records the payment. The whole
// amount is attributed to principal.
func (e *debtEntity) ApplyContribution(amount decimal.Decimal, at time.Time) error {
	e.d.CurrentBalance = e.d.CurrentBalance.Sub(amount)
	e.d.Payments = append(e.d.Payments, Payment{
		ID:        uuid.NewString(),
		Date:      at,
		Amount:    amount,
		Principal: amount,
		Interest:  decimal.Zero,
	})
	e.d.UpdatedAt = at
	return nil
}

type investmentEntity struct{ inv *Investment }

func (e *investmentEntity) ID() string               { return e.inv.ID }
func (e *investmentEntity) Kind() ledger.SpecialKind { return ledger.KindInvestment }
func (e *investmentEntity) Balance() decimal.Decimal { return e.inv.CurrentValue }

func (e *investmentEntity) ApplyWithdrawal(amount decimal.Decimal, at time.Time) error {
	if e.inv.CurrentValue.LessThan(amount) {
		return &ledger.InsufficientFundsError{Source: "investment", Available: e.inv.CurrentValue, Requested: amount}
	}
	e.inv.CurrentValue = e.inv.CurrentValue.Sub(amount)
	e.inv.UpdatedAt = at
	return nil
}

func (e *investmentEntity) ApplyContribution(amount decimal.Decimal, at time.Time) error {
	e.inv.CurrentValue = e.inv.CurrentValue.Add(amount)
	e.inv.UpdatedAt = at
	return nil
}

type goalEntity struct{ g *Goal }

func (e *goalEntity) ID() string               { return e.g.ID }
func (e *goalEntity) Kind() ledger.SpecialKind { return ledger.KindGoal }
func (e *goalEntity) Balance() decimal.Decimal { return e.g.CurrentAmount }

func (e *goalEntity) ApplyWithdrawal(amount decimal.Decimal, at time.Time) error {
	if e.g.CurrentAmount.LessThan(amount) {
		return &ledger.InsufficientFundsError{Source: "goal", Available: e.g.CurrentAmount, Requested: amount}
	}
	e.g.CurrentAmount = e.g.CurrentAmount.Sub(amount)
	e.g.UpdatedAt = at
	return nil
}

func (e *goalEntity) ApplyContribution(amount decimal.Decimal, at time.Time) error {
	e.g.CurrentAmount = e.g.CurrentAmount.Add(amount)
	e.g.Contributions = append(e.g.Contributions, Contribution{
		ID:     uuid.NewString(),
		Date:   at,
		Amount: amount,
	})
	e.g.UpdatedAt = at
	return nil
}

var _ ledger.SpecialEntities = (*Registry)(nil)
