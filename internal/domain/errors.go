package domain

import (
	"errors"
	"fmt"
)

var (
	// Validation errors. Each maps to one rule of the validation engine and
	// is reported to the caller without any storage side effect.
	ErrStructuralInvalid = errors.New("posting is structurally invalid")
	ErrTooFewEntries     = fmt.Errorf("%w: a posting needs at least two entries", ErrStructuralInvalid)
	ErrZeroAmountEntry   = fmt.Errorf("%w: entry amounts must be positive", ErrStructuralInvalid)
	ErrUnbalanced        = errors.New("debits and credits do not balance")
	ErrCurrencyMismatch  = errors.New("incompatible currencies")

	// Lookup errors.
	ErrAccountNotFound = errors.New("account not found")
	ErrPostingNotFound = errors.New("posting not found")
	ErrAccountExists   = errors.New("account already exists")

	ErrInvalidContentHash = errors.New("invalid content hash")
)

// StorageErrorKind classifies storage failures for retry decisions.
type StorageErrorKind string

const (
	StorageConnectionFailure   StorageErrorKind = "connection_failure"
	StorageTimeout             StorageErrorKind = "timeout"
	StorageTransactionConflict StorageErrorKind = "transaction_conflict"
	StorageConstraintViolation StorageErrorKind = "constraint_violation"
)

// StorageError wraps a backend failure with its classification. Connection
// failures, timeouts and transaction conflicts are safe to retry with the
// same content hash; constraint violations other than the duplicate-hash
// case are fatal for the submission.
type StorageError struct {
	Kind StorageErrorKind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may resubmit with the same content.
func (e *StorageError) Retryable() bool {
	switch e.Kind {
	case StorageConnectionFailure, StorageTimeout, StorageTransactionConflict:
		return true
	}
	return false
}

// NewStorageError wraps err with a kind. Nil err returns nil.
func NewStorageError(kind StorageErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: kind, Err: err}
}

// IsValidationError reports whether err originates from the validation
// engine (including the delegated account existence check), meaning storage
// was never attempted.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrStructuralInvalid) ||
		errors.Is(err, ErrUnbalanced) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrAccountNotFound)
}
