package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountCategory identifies one of the two accounts every user owns.
type AccountCategory string

const (
	// Main is the long-horizon savings account.
	Main AccountCategory = "main"
	// Current is the day-to-day spending account, zeroed at every rollover.
	Current AccountCategory = "current"
)

// ParseAccountCategory validates an account category received at the boundary.
func ParseAccountCategory(s string) (AccountCategory, error) {
	switch AccountCategory(s) {
	case Main, Current:
		return AccountCategory(s), nil
	default:
		return "", fmt.Errorf("%w: account category %q", ErrInvalidKind, s)
	}
}

// Direction tells whether a transaction brings money in or takes it out.
type Direction string

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

// ParseDirection validates a transaction direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Income, Expense:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: transaction type %q", ErrInvalidKind, s)
	}
}

// AccountTag is the account affiliation of a transaction.
type AccountTag string

const (
	TagMain    AccountTag = "main"
	TagCurrent AccountTag = "current"
	TagSpecial AccountTag = "special"
)

// Tag returns the transaction affiliation matching the account category.
func (c AccountCategory) Tag() AccountTag {
	return AccountTag(c)
}

// SpecialKind is the kind of a special entity touched by contributions and withdrawals.
type SpecialKind string

const (
	KindDebt       SpecialKind = "debt"
	KindInvestment SpecialKind = "investment"
	KindGoal       SpecialKind = "goal"
)

// ParseSpecialKind validates a special entity kind.
func ParseSpecialKind(s string) (SpecialKind, error) {
	switch SpecialKind(s) {
	case KindDebt, KindInvestment, KindGoal:
		return SpecialKind(s), nil
	default:
		return "", fmt.Errorf("%w: entity type %q", ErrInvalidKind, s)
	}
}

// SpecialCategory tags transactions that do not come from everyday spending.
type SpecialCategory string

const (
	SpecialNone       SpecialCategory = ""
	SpecialTransfer   SpecialCategory = "transfer"
	SpecialDebt       SpecialCategory = "debt"
	SpecialInvestment SpecialCategory = "investment"
	SpecialGoal       SpecialCategory = "goal"
)

// Category returns the special category used for transactions touching this kind.
func (k SpecialKind) Category() SpecialCategory {
	return SpecialCategory(k)
}

// Endpoint is one side of a transfer: an account or a special entity kind.
type Endpoint string

const (
	EndpointMain       Endpoint = "main"
	EndpointCurrent    Endpoint = "current"
	EndpointDebt       Endpoint = "debt"
	EndpointInvestment Endpoint = "investment"
	EndpointGoal       Endpoint = "goal"
)

// Endpoint returns the transfer endpoint for the account category.
func (c AccountCategory) Endpoint() Endpoint {
	return Endpoint(c)
}

// Endpoint returns the transfer endpoint for the special entity kind.
func (k SpecialKind) Endpoint() Endpoint {
	return Endpoint(k)
}

// TransferType is the kind of movement a transfer records.
type TransferType string

const (
	Borrow   TransferType = "borrow"
	Repay    TransferType = "repay"
	Withdraw TransferType = "withdraw"
	Deposit  TransferType = "deposit"
)

// TransferTag labels the companion transaction of a transfer. Rollover
// movements carry their own tags so history never confuses them with
// user-initiated borrow/repay.
type TransferTag string

const (
	TagNone            TransferTag = ""
	TagBorrow          TransferTag = "borrow"
	TagRepay           TransferTag = "repay"
	TagWithdraw        TransferTag = "withdraw"
	TagDeposit         TransferTag = "deposit"
	TagRolloverSurplus TransferTag = "rollover_surplus"
	TagRolloverDeficit TransferTag = "rollover_deficit"
)

// TransferStatus is the lifecycle state of a transfer. Only Completed is
// produced today; transfers are created and settled in one step.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusCompleted TransferStatus = "completed"
	StatusCancelled TransferStatus = "cancelled"
)

// Account is one of the two per-user accounts. Balance is derived from the
// user's transactions and transfers and rewritten by every sync.
type Account struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Category       AccountCategory `json:"category"`
	Balance        decimal.Decimal `json:"balance"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastRolloverAt *time.Time      `json:"last_rollover_at,omitempty"`
}

// Transaction is an append-only record of money entering or leaving an account.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Type            Direction       `json:"type"`
	Account         AccountTag      `json:"account"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	Date            time.Time       `json:"date"`
	IsVisible       bool            `json:"is_visible"`
	SpecialCategory SpecialCategory `json:"special_category,omitempty"`
	TransferType    TransferTag     `json:"transfer_type,omitempty"`
	TransferID      string          `json:"transfer_id,omitempty"`
	LinkedEntityID  string          `json:"linked_entity_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign of its direction.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Transfer is a directed money movement between two endpoints.
type Transfer struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	From           Endpoint        `json:"from_account"`
	To             Endpoint        `json:"to_account"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransferType    `json:"type"`
	LinkedEntityID string          `json:"linked_entity_id,omitempty"`
	Status         TransferStatus  `json:"status"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ContributionResult is returned by ProcessSpecialContribution.
type ContributionResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	TransactionID string          `json:"transaction_id"`
	EntityBalance decimal.Decimal `json:"entity_balance"`
}

// RolloverResult is returned by PerformMonthEndRollover. Amount keeps the
// sign of the Current balance that was rolled over.
type RolloverResult struct {
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Amount     decimal.Decimal `json:"amount"`
	TransferID string          `json:"transfer_id,omitempty"`
}
