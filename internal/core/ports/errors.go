package ports

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrCollisionExhaustion    = errors.New("system busy, please retry later")
	ErrAmountInUse            = errors.New("expected amount held by another pending order")
	ErrLedgerUnavailable      = errors.New("all ledger providers failed")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrConflict               = errors.New("state changed concurrently")
	ErrTransferAlreadyClaimed = errors.New("transfer already settled another order")
	ErrNotFound               = errors.New("not found")
	ErrItemUnavailable        = errors.New("item is not on sale")
)

// ValidationError rejects a request before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
