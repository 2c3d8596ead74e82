package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel error kinds for payouts.
var (
	ErrInvalidState        = errors.New("invalid payout state transition")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrNothingToPay        = errors.New("nothing to pay for period")
	ErrPayoutExecution     = errors.New("payout execution failed")
	ErrNotFound            = errors.New("payout not found")
	ErrInvalidRequest      = errors.New("invalid payout request")
)

// InsufficientBalanceError reports how far a request exceeds the available balance.
type InsufficientBalanceError struct {
	OperatorID string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance for %s: requested %s, available %s",
		e.OperatorID, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// Is makes errors.Is(err, ErrInsufficientBalance) hold.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// ExecutionError wraps a gateway failure for one payout.
type ExecutionError struct {
	PayoutID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("payout %s execution failed: %v", e.PayoutID, e.Err)
}

// Unwrap exposes the gateway error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPayoutExecution) hold.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrPayoutExecution
}
