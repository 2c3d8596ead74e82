package tier

import "errors"

// Sentinel error kinds for tier evaluation.
var (
	ErrNoActiveRate = errors.New("no active commission rate config")
	ErrInvalidInput = errors.New("invalid tier evaluation input")
)
