// Package repository holds the storage adapters behind the ledger, score,
// boundary-fee and payout ports.
package repository

import (
	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/okian/tnvs/internal/domain/scoring"
)

// Stores bundles one implementation of every persistence port.
type Stores struct {
	Ledger       ledger.Store
	Scores       scoring.Store
	BoundaryFees boundary.Store
	Payouts      payout.Store

	close func() error
}

// NewStores bundles the given stores. closeFn may be nil.
func NewStores(l ledger.Store, s scoring.Store, b boundary.Store, p payout.Store, closeFn func() error) Stores {
	return Stores{Ledger: l, Scores: s, BoundaryFees: b, Payouts: p, close: closeFn}
}

// Close releases resources held by the stores.
func (s Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewMemoryStores returns process-local stores. Nothing survives a restart.
func NewMemoryStores() Stores {
	return NewStores(NewMemoryLedger(), NewMemoryScores(), NewMemoryBoundaryFees(), NewMemoryPayouts(), nil)
}
