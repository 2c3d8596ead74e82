package operator

import "errors"

// Sentinel error kinds for the operator directory.
var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrInvalidProfile  = errors.New("invalid operator profile")
)
