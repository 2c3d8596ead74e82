package payout

import (
	"fmt"

	"github.com/okian/tnvs/internal/domain/model"
)

// AllowedTransitions lists the legal next states of each payout state.
var AllowedTransitions = map[model.PayoutStatus][]model.PayoutStatus{
	model.PayoutPending:    {model.PayoutApproved},
	model.PayoutApproved:   {model.PayoutProcessing},
	model.PayoutProcessing: {model.PayoutCompleted, model.PayoutFailed},
	model.PayoutCompleted:  {},
	model.PayoutFailed:     {},
}

// CanTransition reports whether a payout may move from one state to another.
func CanTransition(from, to model.PayoutStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transition(p *model.Payout, to model.PayoutStatus) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, p.Status, to)
	}
	p.Status = to
	return nil
}
