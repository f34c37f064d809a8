package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"smartwallet/pkg/ledger"

	"github.com/shopspring/decimal"
)

const transferColumns = `id, user_id, from_endpoint, to_endpoint, amount, type, linked_entity_id,
	status, date, description, created_at`

// InsertTransfer appends transfer.
func (s *Store) InsertTransfer(ctx context.Context, transfer *ledger.Transfer) error {
	if transfer.ID == "" || transfer.UserID == "" {
		return fmt.Errorf("transfer id and user id are required")
	}

	_, err := s.exec(ctx, s.db, `
	INSERT INTO transfers (`+transferColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.ID, transfer.UserID, string(transfer.From), string(transfer.To), transfer.Amount.String(),
		string(transfer.Type), transfer.LinkedEntityID, string(transfer.Status),
		formatTime(transfer.Date), transfer.Description, formatTime(transfer.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// ListTransfers returns matching transfers, newest first.
func (s *Store) ListTransfers(ctx context.Context, filter ledger.TransferFilter) ([]*ledger.Transfer, error) {
	clauses := []string{"user_id = ?"}
	args := []any{filter.UserID}
	if filter.From != "" {
		clauses = append(clauses, "from_endpoint = ?")
		args = append(args, string(filter.From))
	}
	if filter.To != "" {
		clauses = append(clauses, "to_endpoint = ?")
		args = append(args, string(filter.To))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + transferColumns + ` FROM transfers WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY date DESC, seq DESC`
	page, pageArgs := s.limitOffset(filter.Limit, 0)
	query += page
	args = append(args, pageArgs...)

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var result []*ledger.Transfer
	for rows.Next() {
		var (
			t                     ledger.Transfer
			amount, date, created string
		)
		err := rows.Scan(&t.ID, &t.UserID, &t.From, &t.To, &amount, &t.Type, &t.LinkedEntityID,
			&t.Status, &date, &t.Description, &created)
		if err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		if t.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// SumTransfers totals the user's transfers per (from, to, status), in the
// order each group first appeared.
func (s *Store) SumTransfers(ctx context.Context, userID string) ([]ledger.TransferTotal, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT from_endpoint, to_endpoint, status, amount FROM transfers WHERE user_id = ? ORDER BY seq`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sum transfers: %w", err)
	}
	defer rows.Close()

	type groupKey struct {
		from, to ledger.Endpoint
		status   ledger.TransferStatus
	}
	groups := make(map[groupKey]decimal.Decimal)
	var order []groupKey

	for rows.Next() {
		var (
			key    groupKey
			amount string
		)
		if err := rows.Scan(&key.from, &key.to, &key.status, &amount); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		total, ok := groups[key]
		if !ok {
			order = append(order, key)
		}
		groups[key] = total.Add(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]ledger.TransferTotal, 0, len(order))
	for _, key := range order {
		result = append(result, ledger.TransferTotal{
			From:   key.from,
			To:     key.to,
			Status: key.status,
			Total:  groups[key],
		})
	}
	return result, nil
}
