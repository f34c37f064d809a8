package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SpecialEntity is a debt, investment or savings goal whose running balance
// is moved by contributions and withdrawals.
type SpecialEntity interface {
	ID() string
	Kind() SpecialKind
	Balance() decimal.Decimal

	// ApplyWithdrawal takes amount out of the entity. Entities that hold
	// money fail with an *InsufficientFundsError when they cannot cover it.
	ApplyWithdrawal(amount decimal.Decimal, at time.Time) error

	// ApplyContribution puts amount into the entity.
	ApplyContribution(amount decimal.Decimal, at time.Time) error
}

// SpecialEntities loads and saves special entities on behalf of the
// transfer engine.
type SpecialEntities interface {
	// Load returns ErrEntityNotFound when id does not resolve for the user.
	Load(ctx context.Context, userID string, kind SpecialKind, id string) (SpecialEntity, error)
	Save(ctx context.Context, userID string, entity SpecialEntity) error
}
