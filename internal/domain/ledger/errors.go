package ledger

import "errors"

// Sentinel error kinds for ledger operations.
var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrNotFound             = errors.New("transaction not found")
	ErrInvalidAdjustment    = errors.New("invalid adjustment")
	ErrInvalidTransaction   = errors.New("invalid transaction")
)
