package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/scoring"
)

type scoreKey struct {
	operatorID string
	period     string
	frequency  model.Frequency
}

type scoreRecord struct {
	score model.PerformanceScore
	seq   uint64
}

// MemoryScores is an in-memory scoring.Store.
type MemoryScores struct {
	mu     sync.RWMutex
	seq    uint64
	scores map[scoreKey]scoreRecord
}

var _ scoring.Store = (*MemoryScores)(nil)

// NewMemoryScores creates an empty score store.
func NewMemoryScores() *MemoryScores {
	return &MemoryScores{scores: make(map[scoreKey]scoreRecord)}
}

func (m *MemoryScores) Save(_ context.Context, s model.PerformanceScore) error {
	key := scoreKey{s.OperatorID, s.Period, s.Frequency}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.scores[key]; ok && prev.score.IsFinal {
		return fmt.Errorf("%w: %s %s %s", scoring.ErrScoreFinalized, s.OperatorID, s.Frequency, s.Period)
	}
	m.seq++
	m.scores[key] = scoreRecord{score: cloneScore(s), seq: m.seq}
	return nil
}

func (m *MemoryScores) Get(_ context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.scores[scoreKey{operatorID, period, f}]
	if !ok {
		return model.PerformanceScore{}, fmt.Errorf("%w: %s %s %s", scoring.ErrScoreNotFound, operatorID, f, period)
	}
	return cloneScore(rec.score), nil
}

// Latest picks the newest CalculatedAt; saves in the same instant are
// ordered by write sequence.
func (m *MemoryScores) Latest(_ context.Context, operatorID string) (model.PerformanceScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  scoreRecord
		found bool
	)
	for k, rec := range m.scores {
		if k.operatorID != operatorID {
			continue
		}
		if !found || rec.score.CalculatedAt.After(best.score.CalculatedAt) ||
			(rec.score.CalculatedAt.Equal(best.score.CalculatedAt) && rec.seq > best.seq) {
			best, found = rec, true
		}
	}
	if !found {
		return model.PerformanceScore{}, fmt.Errorf("%w: %s", scoring.ErrScoreNotFound, operatorID)
	}
	return cloneScore(best.score), nil
}

func (m *MemoryScores) Finalize(_ context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error) {
	key := scoreKey{operatorID, period, f}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scores[key]
	if !ok {
		return model.PerformanceScore{}, fmt.Errorf("%w: %s %s %s", scoring.ErrScoreNotFound, operatorID, f, period)
	}
	rec.score.IsFinal = true
	m.scores[key] = rec
	return cloneScore(rec.score), nil
}

func cloneScore(s model.PerformanceScore) model.PerformanceScore {
	if s.MetricSnapshot != nil {
		s.MetricSnapshot = s.MetricSnapshot.Clone()
	}
	return s
}
