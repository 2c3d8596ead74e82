package scoring

import (
	"context"

	"github.com/okian/tnvs/internal/domain/model"
)

// Store keeps one PerformanceScore per (operator, period, frequency).
type Store interface {
	// Save inserts or replaces a score. Replacing a final score fails with
	// ErrScoreFinalized.
	Save(ctx context.Context, s model.PerformanceScore) error
	// Get returns ErrScoreNotFound when nothing was scored for the key.
	Get(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error)
	// Latest returns the most recently calculated score of an operator.
	Latest(ctx context.Context, operatorID string) (model.PerformanceScore, error)
	// Finalize marks a score final and returns it.
	Finalize(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error)
}
