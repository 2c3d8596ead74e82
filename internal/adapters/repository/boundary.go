package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/model"
)

// MemoryBoundaryFees is an in-memory boundary.Store.
type MemoryBoundaryFees struct {
	mu        sync.RWMutex
	fees      map[string]model.BoundaryFee
	driverDay map[string]string
}

var _ boundary.Store = (*MemoryBoundaryFees)(nil)

// NewMemoryBoundaryFees creates an empty boundary fee store.
func NewMemoryBoundaryFees() *MemoryBoundaryFees {
	return &MemoryBoundaryFees{
		fees:      make(map[string]model.BoundaryFee),
		driverDay: make(map[string]string),
	}
}

func driverDayKey(driverID string, day time.Time) string {
	return driverID + "|" + day.Format(time.DateOnly)
}

func (m *MemoryBoundaryFees) Save(_ context.Context, fee model.BoundaryFee) error {
	key := driverDayKey(fee.DriverID, fee.FeeDate)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.driverDay[key]; ok {
		return fmt.Errorf("%w: driver %s on %s", boundary.ErrDuplicateBoundaryFee, fee.DriverID, fee.FeeDate.Format(time.DateOnly))
	}
	m.fees[fee.ID] = fee
	m.driverDay[key] = fee.ID
	return nil
}

func (m *MemoryBoundaryFees) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fee, ok := m.fees[id]
	if !ok {
		return fmt.Errorf("%w: %s", boundary.ErrNotFound, id)
	}
	delete(m.fees, id)
	delete(m.driverDay, driverDayKey(fee.DriverID, fee.FeeDate))
	return nil
}

func (m *MemoryBoundaryFees) Get(_ context.Context, id string) (model.BoundaryFee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fee, ok := m.fees[id]
	if !ok {
		return model.BoundaryFee{}, fmt.Errorf("%w: %s", boundary.ErrNotFound, id)
	}
	return fee, nil
}

func (m *MemoryBoundaryFees) ListByOperator(_ context.Context, operatorID string) ([]model.BoundaryFee, error) {
	m.mu.RLock()
	out := []model.BoundaryFee{}
	for _, fee := range m.fees {
		if fee.OperatorID == operatorID {
			out = append(out, fee)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FeeDate.Equal(out[j].FeeDate) {
			return out[i].FeeDate.Before(out[j].FeeDate)
		}
		return out[i].DriverID < out[j].DriverID
	})
	return out, nil
}
