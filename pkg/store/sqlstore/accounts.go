package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smartwallet/pkg/ledger"

	"github.com/shopspring/decimal"
)

const accountColumns = `id, user_id, category, balance, version, created_at, updated_at, last_rollover_at`

func scanAccount(row interface{ Scan(...any) error }) (*ledger.Account, error) {
	var (
		a                    ledger.Account
		balance              string
		createdAt, updatedAt string
		lastRollover         sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Category, &balance, &a.Version, &createdAt, &updatedAt, &lastRollover); err != nil {
		return nil, err
	}

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid stored balance %q: %w", balance, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if lastRollover.Valid {
		t, err := parseTime(lastRollover.String)
		if err != nil {
			return nil, err
		}
		a.LastRolloverAt = &t
	}
	return &a, nil
}

func nullTime(a *ledger.Account) sql.NullString {
	if a.LastRolloverAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*a.LastRolloverAt), Valid: true}
}

// FindAccount returns the user's account of the category or (nil, nil).
func (s *Store) FindAccount(ctx context.Context, userID string, category ledger.AccountCategory) (*ledger.Account, error) {
	row := s.queryRow(ctx, s.db,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND category = ?`,
		userID, string(category))

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

// CreateAccount inserts account. A user can own one account per category.
func (s *Store) CreateAccount(ctx context.Context, account *ledger.Account) error {
	if account.ID == "" || account.UserID == "" {
		return fmt.Errorf("account id and user id are required")
	}

	_, err := s.exec(ctx, s.db, `
	INSERT INTO accounts (`+accountColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.UserID, string(account.Category), account.Balance.String(), account.Version,
		formatTime(account.CreatedAt), formatTime(account.UpdatedAt), nullTime(account))
	if err != nil {
		return fmt.Errorf("create %s account for user %s: %w", account.Category, account.UserID, err)
	}
	return nil
}

// SaveAccount updates balance and rollover fields when the stored version
// still matches, and bumps the version.
func (s *Store) SaveAccount(ctx context.Context, account *ledger.Account) error {
	res, err := s.exec(ctx, s.db, `
	UPDATE accounts
	SET balance = ?, version = version + 1, updated_at = ?, last_rollover_at = ?
	WHERE id = ? AND user_id = ? AND version = ?`,
		account.Balance.String(), formatTime(account.UpdatedAt), nullTime(account),
		account.ID, account.UserID, account.Version)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.queryRow(ctx, s.db, `SELECT 1 FROM accounts WHERE id = ? AND user_id = ?`,
			account.ID, account.UserID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %s not found", account.ID)
		}
		if err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		return ledger.ErrVersionConflict
	}

	account.Version++
	return nil
}

// ListUserIDs returns the ids of all users owning an account, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, s.db, `SELECT DISTINCT user_id FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
