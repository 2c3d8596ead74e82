package scoring

import "errors"

// Sentinel error kinds for score persistence.
var (
	ErrScoreNotFound  = errors.New("performance score not found")
	ErrScoreFinalized = errors.New("performance score is final")
)
