package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Ledger errors. Callers match them with errors.Is.
var (
	// ErrInsufficientFunds is returned when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrAccountsNotFound is returned when the main or current account of a user is missing.
	ErrAccountsNotFound = errors.New("ledger: accounts not found")

	// ErrEntityNotFound is returned when a special entity id does not resolve for the user.
	ErrEntityNotFound = errors.New("ledger: special entity not found")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("ledger: amount must be greater than zero")

	// ErrInvalidKind is returned for an unknown category, direction or entity type.
	ErrInvalidKind = errors.New("ledger: invalid kind")

	// ErrInvalidUser is returned when the user id is empty.
	ErrInvalidUser = errors.New("ledger: user id is required")

	// ErrVersionConflict is returned by a store when an account was saved
	// from a stale copy.
	ErrVersionConflict = errors.New("ledger: account version conflict")
)

// InsufficientFundsError carries the balances involved in a rejected debit.
type InsufficientFundsError struct {
	Source    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds in %s: available %s, requested %s",
		e.Source, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// Is makes errors.Is(err, ErrInsufficientFunds) true.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// StorageError wraps a failure of the underlying persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage wraps err as a StorageError unless it is nil or already one.
// Version conflicts pass through unwrapped so callers can match them.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrVersionConflict) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err came from the persistence layer.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsClientError reports whether err is caused by the request rather than the system.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAccountsNotFound),
		errors.Is(err, ErrEntityNotFound),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidUser):
		return true
	default:
		return false
	}
}

// ClassifyError returns a short label for metrics.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAccountsNotFound):
		return "accounts_not_found"
	case errors.Is(err, ErrEntityNotFound):
		return "entity_not_found"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidKind), errors.Is(err, ErrInvalidUser):
		return "invalid_input"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsStorage(err):
		return "storage"
	default:
		return "other"
	}
}
