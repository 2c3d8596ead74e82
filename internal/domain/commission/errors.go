package commission

import "errors"

// Sentinel error kinds for commission crediting.
var (
	ErrOperatorNotEligible = errors.New("operator not eligible for commission")
	ErrInvalidBooking      = errors.New("invalid booking event")
	ErrBookingConflict     = errors.New("booking id already credited with different details")
)
