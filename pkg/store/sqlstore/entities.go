package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"smartwallet/pkg/entities"

	"github.com/shopspring/decimal"
)

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored %s %q: %w", field, s, err)
	}
	return d, nil
}

// CreateDebt inserts a debt and its payments.
func (s *Store) CreateDebt(ctx context.Context, d *entities.Debt) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
		INSERT INTO debts (id, user_id, name, current_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.UserID, d.Name, d.CurrentBalance.String(), formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
		if err != nil {
			return fmt.Errorf("create debt: %w", err)
		}
		return s.insertPayments(ctx, tx, d)
	})
}

// FindDebt returns the user's debt with its payments or (nil, nil).
func (s *Store) FindDebt(ctx context.Context, userID, id string) (*entities.Debt, error) {
	debts, err := s.loadDebts(ctx, `id = ? AND user_id = ?`, id, userID)
	if err != nil || len(debts) == 0 {
		return nil, err
	}
	return debts[0], nil
}

// SaveDebt updates the balance and appends payments not yet stored.
func (s *Store) SaveDebt(ctx context.Context, d *entities.Debt) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
		UPDATE debts SET name = ?, current_balance = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
			d.Name, d.CurrentBalance.String(), formatTime(d.UpdatedAt), d.ID, d.UserID)
		if err != nil {
			return fmt.Errorf("save debt: %w", err)
		}
		if err := requireRow(res, "debt", d.ID); err != nil {
			return err
		}
		return s.insertPayments(ctx, tx, d)
	})
}

// ListDebts returns the user's debts ordered by creation.
func (s *Store) ListDebts(ctx context.Context, userID string) ([]*entities.Debt, error) {
	return s.loadDebts(ctx, `user_id = ?`, userID)
}

func (s *Store) insertPayments(ctx context.Context, tx *sql.Tx, d *entities.Debt) error {
	for _, p := range d.Payments {
		_, err := s.exec(ctx, tx, `
		INSERT INTO debt_payments (id, debt_id, date, amount, principal, interest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
			p.ID, d.ID, formatTime(p.Date), p.Amount.String(), p.Principal.String(), p.Interest.String())
		if err != nil {
			return fmt.Errorf("insert debt payment: %w", err)
		}
	}
	return nil
}

func (s *Store) loadDebts(ctx context.Context, where string, args ...any) ([]*entities.Debt, error) {
	rows, err := s.query(ctx, s.db, `
	SELECT id, user_id, name, current_balance, created_at, updated_at
	FROM debts WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("load debts: %w", err)
	}
	defer rows.Close()

	debts := []*entities.Debt{}
	for rows.Next() {
		var (
			d                             entities.Debt
			balance, createdAt, updatedAt string
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &balance, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if d.CurrentBalance, err = parseDecimal("balance", balance); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		debts = append(debts, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, d := range debts {
		if d.Payments, err = s.loadPayments(ctx, d.ID); err != nil {
			return nil, err
		}
	}
	return debts, nil
}

func (s *Store) loadPayments(ctx context.Context, debtID string) ([]entities.Payment, error) {
	rows, err := s.query(ctx, s.db, `
	SELECT id, date, amount, principal, interest FROM debt_payments
	WHERE debt_id = ? ORDER BY seq`, debtID)
	if err != nil {
		return nil, fmt.Errorf("load debt payments: %w", err)
	}
	defer rows.Close()

	var payments []entities.Payment
	for rows.Next() {
		var (
			p                                 entities.Payment
			date, amount, principal, interest string
		)
		if err := rows.Scan(&p.ID, &date, &amount, &principal, &interest); err != nil {
			return nil, err
		}
		if p.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if p.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if p.Principal, err = parseDecimal("principal", principal); err != nil {
			return nil, err
		}
		if p.Interest, err = parseDecimal("interest", interest); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// CreateInvestment inserts an investment.
func (s *Store) CreateInvestment(ctx context.Context, inv *entities.Investment) error {
	_, err := s.exec(ctx, s.db, `
	INSERT INTO investments (id, user_id, name, current_value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.UserID, inv.Name, inv.CurrentValue.String(), formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create investment: %w", err)
	}
	return nil
}

// FindInvestment returns the user's investment or (nil, nil).
func (s *Store) FindInvestment(ctx context.Context, userID, id string) (*entities.Investment, error) {
	investments, err := s.loadInvestments(ctx, `id = ? AND user_id = ?`, id, userID)
	if err != nil || len(investments) == 0 {
		return nil, err
	}
	return investments[0], nil
}

// SaveInvestment overwrites an existing investment.
func (s *Store) SaveInvestment(ctx context.Context, inv *entities.Investment) error {
	res, err := s.exec(ctx, s.db, `
	UPDATE investments SET name = ?, current_value = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`,
		inv.Name, inv.CurrentValue.String(), formatTime(inv.UpdatedAt), inv.ID, inv.UserID)
	if err != nil {
		return fmt.Errorf("save investment: %w", err)
	}
	return requireRow(res, "investment", inv.ID)
}

// ListInvestments returns the user's investments ordered by creation.
func (s *Store) ListInvestments(ctx context.Context, userID string) ([]*entities.Investment, error) {
	return s.loadInvestments(ctx, `user_id = ?`, userID)
}

func (s *Store) loadInvestments(ctx context.Context, where string, args ...any) ([]*entities.Investment, error) {
	rows, err := s.query(ctx, s.db, `
	SELECT id, user_id, name, current_value, created_at, updated_at
	FROM investments WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("load investments: %w", err)
	}
	defer rows.Close()

	investments := []*entities.Investment{}
	for rows.Next() {
		var (
			inv                         entities.Investment
			value, createdAt, updatedAt string
		)
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.Name, &value, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if inv.CurrentValue, err = parseDecimal("value", value); err != nil {
			return nil, err
		}
		if inv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if inv.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		investments = append(investments, &inv)
	}
	return investments, rows.Err()
}

// CreateGoal inserts a goal and its contributions.
func (s *Store) CreateGoal(ctx context.Context, g *entities.Goal) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
		INSERT INTO goals (id, user_id, name, target_amount, current_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.UserID, g.Name, g.TargetAmount.String(), g.CurrentAmount.String(),
			formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
		if err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
		return s.insertContributions(ctx, tx, g)
	})
}

// FindGoal returns the user's goal with its contributions or (nil, nil).
func (s *Store) FindGoal(ctx context.Context, userID, id string) (*entities.Goal, error) {
	goals, err := s.loadGoals(ctx, `id = ? AND user_id = ?`, id, userID)
	if err != nil || len(goals) == 0 {
		return nil, err
	}
	return goals[0], nil
}

// SaveGoal updates the amounts and appends contributions not yet stored.
func (s *Store) SaveGoal(ctx context.Context, g *entities.Goal) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
		UPDATE goals SET name = ?, target_amount = ?, current_amount = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
			g.Name, g.TargetAmount.String(), g.CurrentAmount.String(), formatTime(g.UpdatedAt), g.ID, g.UserID)
		if err != nil {
			return fmt.Errorf("save goal: %w", err)
		}
		if err := requireRow(res, "goal", g.ID); err != nil {
			return err
		}
		return s.insertContributions(ctx, tx, g)
	})
}

// ListGoals returns the user's goals ordered by creation.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]*entities.Goal, error) {
	return s.loadGoals(ctx, `user_id = ?`, userID)
}

func (s *Store) insertContributions(ctx context.Context, tx *sql.Tx, g *entities.Goal) error {
	for _, c := range g.Contributions {
		_, err := s.exec(ctx, tx, `
		INSERT INTO goal_contributions (id, goal_id, date, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
			c.ID, g.ID, formatTime(c.Date), c.Amount.String())
		if err != nil {
			return fmt.Errorf("insert goal contribution: %w", err)
		}
	}
	return nil
}

func (s *Store) loadGoals(ctx context.Context, where string, args ...any) ([]*entities.Goal, error) {
	rows, err := s.query(ctx, s.db, `
	SELECT id, user_id, name, target_amount, current_amount, created_at, updated_at
	FROM goals WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	defer rows.Close()

	goals := []*entities.Goal{}
	for rows.Next() {
		var (
			g                                     entities.Goal
			target, current, createdAt, updatedAt string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if g.TargetAmount, err = parseDecimal("target", target); err != nil {
			return nil, err
		}
		if g.CurrentAmount, err = parseDecimal("current amount", current); err != nil {
			return nil, err
		}
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, g := range goals {
		if g.Contributions, err = s.loadContributions(ctx, g.ID); err != nil {
			return nil, err
		}
	}
	return goals, nil
}

func (s *Store) loadContributions(ctx context.Context, goalID string) ([]entities.Contribution, error) {
	rows, err := s.query(ctx, s.db, `
	SELECT id, date, amount FROM goal_contributions WHERE goal_id = ? ORDER BY seq`, goalID)
	if err != nil {
		return nil, fmt.Errorf("load goal contributions: %w", err)
	}
	defer rows.Close()

	var contributions []entities.Contribution
	for rows.Next() {
		var (
			c            entities.Contribution
			date, amount string
		)
		if err := rows.Scan(&c.ID, &date, &amount); err != nil {
			return nil, err
		}
		if c.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if c.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// requireRow turns an update that matched nothing into a not-found error.
func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}
