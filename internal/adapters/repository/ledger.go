package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/shopspring/decimal"
)

// MemoryLedger is an append-only in-memory ledger.Store.
type MemoryLedger struct {
	mu        sync.RWMutex
	rows      []model.Transaction
	byID      map[string]int
	byBooking map[string]int
}

var _ ledger.Store = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:      make(map[string]int),
		byBooking: make(map[string]int),
	}
}

func (m *MemoryLedger) Append(_ context.Context, tx model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[tx.ID]; ok {
		return fmt.Errorf("%w: id %s", ledger.ErrDuplicateTransaction, tx.ID)
	}
	if tx.BookingID != "" {
		if _, ok := m.byBooking[tx.BookingID]; ok {
			return fmt.Errorf("%w: booking %s", ledger.ErrDuplicateTransaction, tx.BookingID)
		}
	}

	m.rows = append(m.rows, cloneTx(tx))
	idx := len(m.rows) - 1
	m.byID[tx.ID] = idx
	if tx.BookingID != "" {
		m.byBooking[tx.BookingID] = idx
	}
	return nil
}

func (m *MemoryLedger) Get(_ context.Context, id string) (model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return cloneTx(m.rows[idx]), nil
}

func (m *MemoryLedger) FindByBooking(_ context.Context, bookingID string) (model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byBooking[bookingID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("%w: booking %s", ledger.ErrNotFound, bookingID)
	}
	return cloneTx(m.rows[idx]), nil
}

// List returns matching rows in append order.
func (m *MemoryLedger) List(_ context.Context, operatorID string, f ledger.Filter) ([]model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Transaction{}
	for _, tx := range m.rows {
		if tx.OperatorID != operatorID || !f.Matches(tx) {
			continue
		}
		out = append(out, cloneTx(tx))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryLedger) Balance(_ context.Context, operatorID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, tx := range m.rows {
		if tx.OperatorID == operatorID && tx.Status != model.Reversed {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (m *MemoryLedger) MarkReconciled(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	m.rows[idx].Reconciled = true
	return nil
}

func cloneTx(tx model.Transaction) model.Transaction {
	if tx.CommissionRate != nil {
		r := *tx.CommissionRate
		tx.CommissionRate = &r
	}
	if tx.CalculationDetails != nil {
		details := make(map[string]string, len(tx.CalculationDetails))
		for k, v := range tx.CalculationDetails {
			details[k] = v
		}
		tx.CalculationDetails = details
	}
	return tx
}
