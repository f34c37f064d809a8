package memory

import (
	"context"
	"fmt"
	"sort"

	"smartwallet/pkg/entities"
)

func copyDebt(d *entities.Debt) *entities.Debt {
	c := *d
	c.Payments = append([]entities.Payment(nil), d.Payments...)
	return &c
}

func copyInvestment(inv *entities.Investment) *entities.Investment {
	c := *inv
	return &c
}

func copyGoal(g *entities.Goal) *entities.Goal {
	c := *g
	c.Contributions = append([]entities.Contribution(nil), g.Contributions...)
	return &c
}

// CreateDebt inserts a debt.
func (s *Store) CreateDebt(ctx context.Context, d *entities.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.debts[d.ID]; exists {
		return fmt.Errorf("debt %s already exists", d.ID)
	}
	s.debts[d.ID] = copyDebt(d)
	return nil
}

// FindDebt returns the user's debt or (nil, nil).
func (s *Store) FindDebt(ctx context.Context, userID, id string) (*entities.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.debts[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	return copyDebt(d), nil
}

// SaveDebt overwrites an existing debt.
func (s *Store) SaveDebt(ctx context.Context, d *entities.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.debts[d.ID]
	if !ok || stored.UserID != d.UserID {
		return fmt.Errorf("debt %s not found", d.ID)
	}
	s.debts[d.ID] = copyDebt(d)
	return nil
}

// ListDebts returns the user's debts ordered by creation.
func (s *Store) ListDebts(ctx context.Context, userID string) ([]*entities.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*entities.Debt{}
	for _, d := range s.debts {
		if d.UserID == userID {
			result = append(result, copyDebt(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// CreateInvestment inserts an investment.
func (s *Store) CreateInvestment(ctx context.Context, inv *entities.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.investments[inv.ID]; exists {
		return fmt.Errorf("investment %s already exists", inv.ID)
	}
	s.investments[inv.ID] = copyInvestment(inv)
	return nil
}

// FindInvestment returns the user's investment or (nil, nil).
func (s *Store) FindInvestment(ctx context.Context, userID, id string) (*entities.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investments[id]
	if !ok || inv.UserID != userID {
		return nil, nil
	}
	return copyInvestment(inv), nil
}

// SaveInvestment overwrites an existing investment.
func (s *Store) SaveInvestment(ctx context.Context, inv *entities.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.investments[inv.ID]
	if !ok || stored.UserID != inv.UserID {
		return fmt.Errorf("investment %s not found", inv.ID)
	}
	s.investments[inv.ID] = copyInvestment(inv)
	return nil
}

// ListInvestments returns the user's investments ordered by creation.
func (s *Store) ListInvestments(ctx context.Context, userID string) ([]*entities.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*entities.Investment{}
	for _, inv := range s.investments {
		if inv.UserID == userID {
			result = append(result, copyInvestment(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// CreateGoal inserts a goal.
func (s *Store) CreateGoal(ctx context.Context, g *entities.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.goals[g.ID]; exists {
		return fmt.Errorf("goal %s already exists", g.ID)
	}
	s.goals[g.ID] = copyGoal(g)
	return nil
}

// FindGoal returns the user's goal or (nil, nil).
func (s *Store) FindGoal(ctx context.Context, userID, id string) (*entities.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return nil, nil
	}
	return copyGoal(g), nil
}

// SaveGoal overwrites an existing goal.
func (s *Store) SaveGoal(ctx context.Context, g *entities.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.goals[g.ID]
	if !ok || stored.UserID != g.UserID {
		return fmt.Errorf("goal %s not found", g.ID)
	}
	s.goals[g.ID] = copyGoal(g)
	return nil
}

// ListGoals returns the user's goals ordered by creation.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]*entities.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*entities.Goal{}
	for _, g := range s.goals {
		if g.UserID == userID {
			result = append(result, copyGoal(g))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

var _ entities.Store = (*Store)(nil)
