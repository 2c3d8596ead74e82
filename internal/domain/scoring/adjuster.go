package scoring

import (
	"context"

	"github.com/okian/tnvs/internal/domain/model"
)

// AdjustmentContext tells an adjuster whose score it is looking at.
type AdjustmentContext struct {
	OperatorID string
	Region     string
	Period     string
	Frequency  model.Frequency
}

// Adjuster modifies a base breakdown after the core formula, for example a
// regional or seasonal correction. The calculator re-clamps whatever it returns.
type Adjuster interface {
	Adjust(ctx context.Context, actx AdjustmentContext, b Breakdown) (Breakdown, error)
}

// AdjusterFunc adapts a function to Adjuster.
type AdjusterFunc func(ctx context.Context, actx AdjustmentContext, b Breakdown) (Breakdown, error)

// Adjust calls f.
func (f AdjusterFunc) Adjust(ctx context.Context, actx AdjustmentContext, b Breakdown) (Breakdown, error) {
	return f(ctx, actx, b)
}

// NoopAdjuster returns the breakdown unchanged.
type NoopAdjuster struct{}

// Adjust returns b.
func (NoopAdjuster) Adjust(_ context.Context, _ AdjustmentContext, b Breakdown) (Breakdown, error) {
	return b, nil
}
