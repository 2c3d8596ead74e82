package boundary

import (
	"errors"
	"strings"
)

// Sentinel error kinds for boundary-fee processing.
var (
	ErrInvalidBoundaryFeeData = errors.New("invalid boundary fee data")
	ErrDuplicateBoundaryFee   = errors.New("boundary fee already recorded for driver and date")
	ErrNotFound               = errors.New("boundary fee not found")
)

// FieldError names one rejected submission field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidDataError lists every rejected field of a submission.
type InvalidDataError struct {
	Fields []FieldError
}

func (e *InvalidDataError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid boundary fee data: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrInvalidBoundaryFeeData) hold.
func (e *InvalidDataError) Is(target error) bool {
	return target == ErrInvalidBoundaryFeeData
}
