package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/payout"
)

// MemoryPayouts is an in-memory payout.Store keeping insertion order.
type MemoryPayouts struct {
	mu      sync.RWMutex
	payouts map[string]model.Payout
	order   []string
}

var _ payout.Store = (*MemoryPayouts)(nil)

// NewMemoryPayouts creates an empty payout store.
func NewMemoryPayouts() *MemoryPayouts {
	return &MemoryPayouts{payouts: make(map[string]model.Payout)}
}

func (m *MemoryPayouts) Create(_ context.Context, p model.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[p.ID]; ok {
		return fmt.Errorf("payout %s already exists", p.ID)
	}
	m.payouts[p.ID] = p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MemoryPayouts) Update(_ context.Context, p model.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payouts[p.ID]; !ok {
		return fmt.Errorf("%w: %s", payout.ErrNotFound, p.ID)
	}
	m.payouts[p.ID] = p
	return nil
}

func (m *MemoryPayouts) ClaimForProcessing(_ context.Context, id string, at time.Time) (model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return model.Payout{}, fmt.Errorf("%w: %s", payout.ErrNotFound, id)
	}
	if p.Status != model.PayoutApproved {
		return model.Payout{}, fmt.Errorf("%w: %s is %s", payout.ErrInvalidState, id, p.Status)
	}
	p.Status = model.PayoutProcessing
	p.ProcessedAt = &at
	m.payouts[id] = p
	return p, nil
}

func (m *MemoryPayouts) Get(_ context.Context, id string) (model.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payouts[id]
	if !ok {
		return model.Payout{}, fmt.Errorf("%w: %s", payout.ErrNotFound, id)
	}
	return p, nil
}

func (m *MemoryPayouts) ListByOperator(_ context.Context, operatorID string) ([]model.Payout, error) {
	return m.list(func(p model.Payout) bool { return p.OperatorID == operatorID }), nil
}

func (m *MemoryPayouts) ListByStatus(_ context.Context, status model.PayoutStatus) ([]model.Payout, error) {
	return m.list(func(p model.Payout) bool { return p.Status == status }), nil
}

func (m *MemoryPayouts) list(keep func(model.Payout) bool) []model.Payout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Payout{}
	for _, id := range m.order {
		if p := m.payouts[id]; keep(p) {
			out = append(out, p)
		}
	}
	return out
}
