package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// transferSpec describes a transfer and its companion transaction.
type transferSpec struct {
	userID         string
	from, to       Endpoint
	kind           TransferType
	tag            TransferTag
	amount         decimal.Decimal
	description    string
	linkedEntityID string

	// companion transaction placement
	account   AccountCategory
	direction Direction
}

// writeTransfer persists a completed transfer and its companion transaction.
// The two writes are independent; a failure between them is healed by the
// next balance sync because balances only count the transfer.
func (s *Service) writeTransfer(ctx context.Context, spec transferSpec) (*Transfer, *Transaction, error) {
	now := s.now()

	transfer := &Transfer{
		ID:             uuid.NewString(),
		UserID:         spec.userID,
		From:           spec.from,
		To:             spec.to,
		Amount:         spec.amount,
		Type:           spec.kind,
		LinkedEntityID: spec.linkedEntityID,
		Status:         StatusCompleted,
		Date:           now,
		Description:    spec.description,
		CreatedAt:      now,
	}
	if err := s.store.InsertTransfer(ctx, transfer); err != nil {
		return nil, nil, WrapStorage("insert transfer", err)
	}

	tx := &Transaction{
		ID:              uuid.NewString(),
		UserID:          spec.userID,
		Amount:          spec.amount,
		Type:            spec.direction,
		Account:         spec.account.Tag(),
		Category:        string(SpecialTransfer),
		Description:     spec.description,
		Date:            now,
		IsVisible:       true,
		SpecialCategory: SpecialTransfer,
		TransferType:    spec.tag,
		TransferID:      transfer.ID,
		LinkedEntityID:  spec.linkedEntityID,
		CreatedAt:       now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return transfer, nil, WrapStorage("insert transaction", err)
	}

	return transfer, tx, nil
}

// BorrowFromMain moves amount from Main to Current.
func (s *Service) BorrowFromMain(ctx context.Context, userID string, amount decimal.Decimal, description string) (*Transfer, error) {
	if description == "" {
		description = "Borrowed from Main account"
	}
	return s.moveBetweenAccounts(ctx, "borrow", transferSpec{
		userID:      userID,
		from:        EndpointMain,
		to:          EndpointCurrent,
		kind:        Borrow,
		tag:         TagBorrow,
		amount:      amount,
		description: description,
		account:     Current,
		direction:   Income,
	})
}

// RepayToMain moves amount from Current back to Main.
func (s *Service) RepayToMain(ctx context.Context, userID string, amount decimal.Decimal, description string) (*Transfer, error) {
	if description == "" {
		description = "Repaid to Main account"
	}
	return s.moveBetweenAccounts(ctx, "repay", transferSpec{
		userID:      userID,
		from:        EndpointCurrent,
		to:          EndpointMain,
		kind:        Repay,
		tag:         TagRepay,
		amount:      amount,
		description: description,
		account:     Current,
		direction:   Expense,
	})
}

func (s *Service) moveBetweenAccounts(ctx context.Context, operation string, spec transferSpec) (transfer *Transfer, err error) {
	start := time.Now()
	defer func() { s.observe(operation, start, err) }()

	if err := validateAmount(spec.amount); err != nil {
		return nil, err
	}
	unlock, err := s.lockUser(ctx, spec.userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.requireAccounts(ctx, spec.userID); err != nil {
		return nil, err
	}

	source := AccountCategory(spec.from)
	if err := s.checkFunds(ctx, spec.userID, source, spec.amount); err != nil {
		return nil, err
	}

	transfer, _, err = s.writeTransfer(ctx, spec)
	if err != nil {
		return nil, err
	}

	if _, err := s.syncBoth(ctx, spec.userID); err != nil {
		return nil, err
	}

	s.metrics.RecordTransfer(string(spec.kind), spec.amount.InexactFloat64())
	s.userLogger(spec.userID).Info("transfer completed",
		zap.String("type", string(spec.kind)),
		zap.String("from", string(spec.from)),
		zap.String("to", string(spec.to)),
		zap.String("amount", spec.amount.StringFixed(2)),
		zap.String("transfer_id", transfer.ID),
	)
	return transfer, nil
}

// checkFunds syncs the source account and fails with an
// *InsufficientFundsError when it cannot cover amount.
func (s *Service) checkFunds(ctx context.Context, userID string, source AccountCategory, amount decimal.Decimal) error {
	account, err := s.syncAccount(ctx, userID, source, nil)
	if err != nil {
		return err
	}
	if account.Balance.LessThan(amount) {
		return &InsufficientFundsError{
			Source:    string(source),
			Available: account.Balance,
			Requested: amount,
		}
	}
	return nil
}

// WithdrawFromSpecial moves amount out of a debt, investment or goal into
// the configured destination account. Investments and goals must hold at
// least amount; a debt withdrawal borrows against it and raises its balance.
func (s *Service) WithdrawFromSpecial(ctx context.Context, userID string, kind SpecialKind, entityID string, amount decimal.Decimal, description string) (transfer *Transfer, err error) {
	start := time.Now()
	defer func() { s.observe("withdraw", start, err) }()

	if _, err := ParseSpecialKind(string(kind)); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.requireAccounts(ctx, userID); err != nil {
		return nil, err
	}

	entity, err := s.entities.Load(ctx, userID, kind, entityID)
	if err != nil {
		return nil, err
	}
	if err := entity.ApplyWithdrawal(amount, s.now()); err != nil {
		return nil, err
	}

	destination := s.config.WithdrawalDestination
	if description == "" {
		description = fmt.Sprintf("Withdrawal from %s", kind)
	}

	transfer, _, err = s.writeTransfer(ctx, transferSpec{
		userID:         userID,
		from:           kind.Endpoint(),
		to:             destination.Endpoint(),
		kind:           Withdraw,
		tag:            TagWithdraw,
		amount:         amount,
		description:    description,
		linkedEntityID: entity.ID(),
		account:        destination,
		direction:      Income,
	})
	if err != nil {
		return nil, err
	}

	if err := s.entities.Save(ctx, userID, entity); err != nil {
		s.userLogger(userID).Error("entity not updated after withdrawal transfer",
			zap.String("kind", string(kind)),
			zap.String("entity_id", entity.ID()),
			zap.String("transfer_id", transfer.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if _, err := s.syncAccount(ctx, userID, destination, nil); err != nil {
		return nil, err
	}

	s.metrics.RecordTransfer(string(Withdraw), amount.InexactFloat64())
	s.userLogger(userID).Info("withdrawal completed",
		zap.String("kind", string(kind)),
		zap.String("entity_id", entity.ID()),
		zap.String("destination", string(destination)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("transfer_id", transfer.ID),
	)
	return transfer, nil
}

// ProcessSpecialContribution moves amount from Main into a debt, investment
// or goal. The money leaves Main through a hidden expense transaction tagged
// with the entity kind; no transfer is recorded.
func (s *Service) ProcessSpecialContribution(ctx context.Context, userID string, kind SpecialKind, entityID string, amount decimal.Decimal, description string) (result *ContributionResult, err error) {
	start := time.Now()
	defer func() { s.observe("contribute", start, err) }()

	if _, err := ParseSpecialKind(string(kind)); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.requireAccounts(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, userID, Main, amount); err != nil {
		return nil, err
	}

	now := s.now()
	entity, err := s.entities.Load(ctx, userID, kind, entityID)
	if err != nil {
		return nil, err
	}
	if err := entity.ApplyContribution(amount, now); err != nil {
		return nil, err
	}

	if description == "" {
		description = fmt.Sprintf("Contribution to %s", kind)
	}
	tx := &Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Amount:          amount,
		Type:            Expense,
		Account:         TagMain,
		Category:        string(kind),
		Description:     description,
		Date:            now,
		IsVisible:       false,
		SpecialCategory: kind.Category(),
		LinkedEntityID:  entity.ID(),
		CreatedAt:       now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return nil, WrapStorage("insert transaction", err)
	}

	if err := s.entities.Save(ctx, userID, entity); err != nil {
		s.userLogger(userID).Error("entity not updated after contribution",
			zap.String("kind", string(kind)),
			zap.String("entity_id", entity.ID()),
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		return nil, err
	}

	if _, err := s.syncAccount(ctx, userID, Main, nil); err != nil {
		return nil, err
	}

	s.userLogger(userID).Info("contribution completed",
		zap.String("kind", string(kind)),
		zap.String("entity_id", entity.ID()),
		zap.String("amount", amount.StringFixed(2)),
	)
	return &ContributionResult{
		Success:       true,
		Message:       fmt.Sprintf("Contributed %s to %s", amount.StringFixed(2), kind),
		TransactionID: tx.ID,
		EntityBalance: entity.Balance(),
	}, nil
}
