package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const rolloverSuccess = "success"

// PerformMonthEndRollover empties the Current account into Main. A surplus
// is deposited into Main; a deficit is covered by borrowing from Main. The
// returned amount keeps the sign of the balance that was rolled over, and
// Current ends at zero either way. Calling it again right away is a no-op,
// but nothing stops two rollovers in the same month.
func (s *Service) PerformMonthEndRollover(ctx context.Context, userID string) (result *RolloverResult, err error) {
	start := time.Now()
	defer func() { s.observe("rollover", start, err) }()

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.requireAccounts(ctx, userID); err != nil {
		return nil, err
	}

	current, err := s.syncAccount(ctx, userID, Current, nil)
	if err != nil {
		return nil, err
	}
	balance := current.Balance
	now := s.now()
	stamp := func(a *Account) { a.LastRolloverAt = &now }

	if balance.IsZero() {
		if _, err := s.syncAccount(ctx, userID, Current, stamp); err != nil {
			return nil, err
		}
		return &RolloverResult{
			Status:  rolloverSuccess,
			Message: "Current account already balanced, nothing to roll over",
			Amount:  balance,
		}, nil
	}

	spec := transferSpec{
		userID:  userID,
		amount:  balance.Abs(),
		account: Current,
	}
	var message string
	if balance.IsPositive() {
		spec.from, spec.to = EndpointCurrent, EndpointMain
		spec.kind, spec.tag = Deposit, TagRolloverSurplus
		spec.direction = Expense
		spec.description = fmt.Sprintf("Month-end rollover: surplus of %s moved to Main", balance.StringFixed(2))
		message = fmt.Sprintf("Moved surplus of %s to Main account", balance.StringFixed(2))
	} else {
		spec.from, spec.to = EndpointMain, EndpointCurrent
		spec.kind, spec.tag = Borrow, TagRolloverDeficit
		spec.direction = Income
		spec.description = fmt.Sprintf("Month-end rollover: deficit of %s covered by Main", balance.Abs().StringFixed(2))
		message = fmt.Sprintf("Covered deficit of %s from Main account", balance.Abs().StringFixed(2))
	}

	transfer, _, err := s.writeTransfer(ctx, spec)
	if err != nil {
		return nil, err
	}

	if _, err := s.syncAccount(ctx, userID, Main, nil); err != nil {
		return nil, err
	}
	current, err = s.syncAccount(ctx, userID, Current, stamp)
	if err != nil {
		return nil, err
	}
	if !current.Balance.IsZero() {
		s.userLogger(userID).Warn("current account not zero after rollover",
			zap.String("balance", current.Balance.String()),
		)
	}

	s.metrics.RecordTransfer(string(spec.kind), spec.amount.InexactFloat64())
	s.userLogger(userID).Info("month-end rollover completed",
		zap.String("amount", balance.StringFixed(2)),
		zap.String("transfer_type", string(spec.kind)),
		zap.String("transfer_id", transfer.ID),
	)

	return &RolloverResult{
		Status:     rolloverSuccess,
		Message:    message,
		Amount:     balance,
		TransferID: transfer.ID,
	}, nil
}

// UserRollover is the outcome of one user's rollover in a batch.
type UserRollover struct {
	UserID string          `json:"user_id"`
	Result *RolloverResult `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Err    error           `json:"-"`
}

// RolloverReport summarizes RolloverAll.
type RolloverReport struct {
	Users     int            `json:"users"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []UserRollover `json:"results"`
}

// RolloverAll performs the month-end rollover for every user with an
// account. A failing user does not stop the batch; the error is recorded in
// the report. The batch only stops early when ctx is done.
func (s *Service) RolloverAll(ctx context.Context) (*RolloverReport, error) {
	userIDs, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return nil, WrapStorage("list users", err)
	}

	results := make([]UserRollover, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.RolloverConcurrency)

	for i, userID := range userIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.PerformMonthEndRollover(gctx, userID)
			results[i] = UserRollover{UserID: userID, Result: res, Err: err}
			if err != nil {
				results[i].Error = err.Error()
				s.userLogger(userID).Error("rollover failed", zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &RolloverReport{Users: len(userIDs), Results: results}
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}

	s.logger.Info("rollover batch finished",
		zap.Int("users", report.Users),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
