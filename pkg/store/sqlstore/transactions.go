package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"smartwallet/pkg/ledger"

	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, amount, type, account, category, description, date, is_visible,
	special_category, transfer_type, transfer_id, linked_entity_id, created_at`

// transactionWhere translates filter into a WHERE clause with '?' placeholders.
func transactionWhere(filter ledger.TransactionFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if filter.Account != "" {
		clauses = append(clauses, "account = ?")
		args = append(args, string(filter.Account))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.SpecialCategory != ledger.SpecialNone {
		clauses = append(clauses, "special_category = ?")
		args = append(args, string(filter.SpecialCategory))
	}
	if len(filter.ExcludeSpecial) > 0 {
		marks := make([]string, len(filter.ExcludeSpecial))
		for i, sc := range filter.ExcludeSpecial {
			marks[i] = "?"
			args = append(args, string(sc))
		}
		clauses = append(clauses, "special_category NOT IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Visible != nil {
		clauses = append(clauses, "is_visible = ?")
		args = append(args, *filter.Visible)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "date <= ?")
		args = append(args, formatTime(filter.To))
	}

	return strings.Join(clauses, " AND "), args
}

// InsertTransaction appends tx.
func (s *Store) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if tx.ID == "" || tx.UserID == "" {
		return fmt.Errorf("transaction id and user id are required")
	}

	_, err := s.exec(ctx, s.db, `
	INSERT INTO transactions (`+transactionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Amount.String(), string(tx.Type), string(tx.Account), tx.Category, tx.Description,
		formatTime(tx.Date), tx.IsVisible, string(tx.SpecialCategory), string(tx.TransferType),
		tx.TransferID, tx.LinkedEntityID, formatTime(tx.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListTransactions returns matching transactions, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]*ledger.Transaction, error) {
	where, args := transactionWhere(filter)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where + ` ORDER BY date DESC, seq DESC`
	page, pageArgs := s.limitOffset(filter.Limit, filter.Offset)
	query += page
	args = append(args, pageArgs...)

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []*ledger.Transaction
	for rows.Next() {
		var (
			tx                    ledger.Transaction
			amount, date, created string
		)
		err := rows.Scan(&tx.ID, &tx.UserID, &amount, &tx.Type, &tx.Account, &tx.Category, &tx.Description,
			&date, &tx.IsVisible, &tx.SpecialCategory, &tx.TransferType, &tx.TransferID, &tx.LinkedEntityID, &created)
		if err != nil {
			return nil, err
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		if tx.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if tx.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, &tx)
	}
	return result, rows.Err()
}

// SumTransactions totals matching amounts per direction. Limit and Offset are ignored.
func (s *Store) SumTransactions(ctx context.Context, filter ledger.TransactionFilter) (ledger.DirectionTotals, error) {
	totals := ledger.DirectionTotals{Income: decimal.Zero, Expense: decimal.Zero}

	where, args := transactionWhere(filter)
	rows, err := s.query(ctx, s.db, `SELECT type, amount FROM transactions WHERE `+where, args...)
	if err != nil {
		return totals, fmt.Errorf("sum transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var direction, amount string
		if err := rows.Scan(&direction, &amount); err != nil {
			return totals, err
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return totals, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		switch ledger.Direction(direction) {
		case ledger.Income:
			totals.Income = totals.Income.Add(value)
		case ledger.Expense:
			totals.Expense = totals.Expense.Add(value)
		}
	}
	return totals, rows.Err()
}

// limitOffset returns the pagination suffix. SQLite needs a LIMIT before any
// OFFSET, so an unbounded page uses -1 there and ALL on Postgres.
func (s *Store) limitOffset(limit, offset int) (string, []any) {
	var (
		clause string
		args   []any
	)
	switch {
	case limit > 0:
		clause = ` LIMIT ?`
		args = append(args, limit)
	case offset > 0 && s.driver == DriverPostgres:
		clause = ` LIMIT ALL`
	case offset > 0:
		clause = ` LIMIT -1`
	}
	if offset > 0 {
		clause += ` OFFSET ?`
		args = append(args, offset)
	}
	return clause, args
}
