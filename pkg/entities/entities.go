package entities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartwallet/pkg/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidEntity is returned when a new entity fails validation.
var ErrInvalidEntity = errors.New("entities: invalid entity")

// Debt is a liability the user pays down with contributions. Withdrawing
// from a debt borrows against it and raises the balance.
type Debt struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Payments       []Payment       `json:"payments"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Payment is one entry of a debt's payment history.
type Payment struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
}

// Investment holds money at its current market value.
type Investment struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Name         string          `json:"name"`
	CurrentValue decimal.Decimal `json:"current_value"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Goal is a savings target funded by contributions.
type Goal struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Contributions []Contribution  `json:"contributions"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Contribution is one entry of a goal's funding history.
type Contribution struct {
	ID     string          `json:"id"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Reached reports whether the goal has met its target.
func (g *Goal) Reached() bool {
	return g.TargetAmount.IsPositive() && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

// Store persists special entities. Find misses return (nil, nil).
type Store interface {
	CreateDebt(ctx context.Context, d *Debt) error
	FindDebt(ctx context.Context, userID, id string) (*Debt, error)
	SaveDebt(ctx context.Context, d *Debt) error
	ListDebts(ctx context.Context, userID string) ([]*Debt, error)

	CreateInvestment(ctx context.Context, inv *Investment) error
	FindInvestment(ctx context.Context, userID, id string) (*Investment, error)
	SaveInvestment(ctx context.Context, inv *Investment) error
	ListInvestments(ctx context.Context, userID string) ([]*Investment, error)

	CreateGoal(ctx context.Context, g *Goal) error
	FindGoal(ctx context.Context, userID, id string) (*Goal, error)
	SaveGoal(ctx context.Context, g *Goal) error
	ListGoals(ctx context.Context, userID string) ([]*Goal, error)
}

// NewDebt validates and builds a debt with a fresh id.
func NewDebt(userID, name string, balance decimal.Decimal, now time.Time) (*Debt, error) {
	if err := validate(userID, name, balance); err != nil {
		return nil, err
	}
	return &Debt{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           strings.TrimSpace(name),
		CurrentBalance: balance,
		Payments:       []Payment{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewInvestment validates and builds an investment with a fresh id.
func NewInvestment(userID, name string, value decimal.Decimal, now time.Time) (*Investment, error) {
	if err := validate(userID, name, value); err != nil {
		return nil, err
	}
	return &Investment{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         strings.TrimSpace(name),
		CurrentValue: value,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewGoal validates and builds a goal with a fresh id.
func NewGoal(userID, name string, target, current decimal.Decimal, now time.Time) (*Goal, error) {
	if err := validate(userID, name, current); err != nil {
		return nil, err
	}
	if !target.IsPositive() {
		return nil, fmt.Errorf("%w: target amount must be greater than zero", ErrInvalidEntity)
	}
	return &Goal{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          strings.TrimSpace(name),
		TargetAmount:  target,
		CurrentAmount: current,
		Contributions: []Contribution{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validate(userID, name string, amount decimal.Decimal) error {
	switch {
	case userID == "":
		return ledger.ErrInvalidUser
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidEntity)
	case amount.IsNegative():
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidEntity)
	}
	return nil
}
