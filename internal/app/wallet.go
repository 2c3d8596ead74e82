package service

import (
	"context"

	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/shopspring/decimal"
)

// Wallet is an operator's balance view.
type Wallet struct {
	OperatorID string `json:"operator_id"`
	Currency   string `json:"currency"`
	// Balance is the sum of every posted transaction.
	Balance decimal.Decimal `json:"balance"`
	// Reserved is held by payouts that are pending, approved or processing.
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`

	Commissions  decimal.Decimal `json:"commissions"`
	Bonuses      decimal.Decimal `json:"bonuses"`
	Adjustments  decimal.Decimal `json:"adjustments"`
	Penalties    decimal.Decimal `json:"penalties"`
	BoundaryFees decimal.Decimal `json:"boundary_fees"`
	Payouts      decimal.Decimal `json:"payouts"`
}

// CreditBooking posts the commission of a completed booking. A replayed
// booking returns the original transaction with duplicate set.
func (s *Service) CreditBooking(ctx context.Context, ev model.BookingEvent) (model.Transaction, bool, error) {
	if err := s.ready(); err != nil {
		return model.Transaction{}, false, err
	}
	unlock := s.locks.Lock(ev.OperatorID)
	defer unlock()
	return s.commission.Credit(ctx, ev)
}

// RecordBoundaryFee computes a driver-day fee and credits the operator.
func (s *Service) RecordBoundaryFee(ctx context.Context, sub boundary.Submission) (model.BoundaryFee, error) {
	if err := s.ready(); err != nil {
		return model.BoundaryFee{}, err
	}
	if _, err := s.directory.Get(ctx, sub.OperatorID); err != nil {
		return model.BoundaryFee{}, err
	}
	unlock := s.locks.Lock(sub.OperatorID)
	defer unlock()
	return s.boundary.Record(ctx, sub)
}

// BoundaryFees lists the fees recorded for an operator.
func (s *Service) BoundaryFees(ctx context.Context, operatorID string) ([]model.BoundaryFee, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.boundary.ListByOperator(ctx, operatorID)
}

// PostAdjustment records a manual bonus, penalty or adjustment.
func (s *Service) PostAdjustment(ctx context.Context, operatorID string, t model.TransactionType, amount decimal.Decimal, reason string) (model.Transaction, error) {
	if err := s.ready(); err != nil {
		return model.Transaction{}, err
	}
	if _, err := s.directory.Get(ctx, operatorID); err != nil {
		return model.Transaction{}, err
	}
	unlock := s.locks.Lock(operatorID)
	defer unlock()
	return s.ledger.PostAdjustment(ctx, operatorID, t, amount, reason)
}

// Wallet returns the balance and the per-type totals of an operator.
func (s *Service) Wallet(ctx context.Context, operatorID string) (Wallet, error) {
	if err := s.ready(); err != nil {
		return Wallet{}, err
	}
	txs, err := s.ledger.List(ctx, operatorID, ledger.Filter{})
	if err != nil {
		return Wallet{}, err
	}
	payouts, err := s.payouts.ListByOperator(ctx, operatorID)
	if err != nil {
		return Wallet{}, err
	}

	balance := ledger.BalanceOf(txs)
	reserved := decimal.Zero
	for _, p := range payouts {
		if p.Status.Open() {
			reserved = reserved.Add(p.PayoutAmount)
		}
	}
	totals := ledger.Summarize(txs)
	return Wallet{
		OperatorID:   operatorID,
		Currency:     money.Currency,
		Balance:      money.Round(balance),
		Reserved:     money.Round(reserved),
		Available:    money.Round(balance.Sub(reserved)),
		Commissions:  money.Round(totals.Commissions),
		Bonuses:      money.Round(totals.Bonuses),
		Adjustments:  money.Round(totals.Adjustments),
		Penalties:    money.Round(totals.Penalties),
		BoundaryFees: money.Round(totals.BoundaryFees),
		Payouts:      money.Round(totals.Payouts),
	}, nil
}

// Transactions lists an operator's ledger rows in posting order.
func (s *Service) Transactions(ctx context.Context, operatorID string, f ledger.Filter) ([]model.Transaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, operatorID, f)
}

// Transaction returns one ledger row.
func (s *Service) Transaction(ctx context.Context, id string) (model.Transaction, error) {
	if err := s.ready(); err != nil {
		return model.Transaction{}, err
	}
	return s.ledger.Get(ctx, id)
}

// Reconcile flags a transaction as matched against an external statement.
func (s *Service) Reconcile(ctx context.Context, id string) (model.Transaction, error) {
	if err := s.ready(); err != nil {
		return model.Transaction{}, err
	}
	if err := s.ledger.MarkReconciled(ctx, id); err != nil {
		return model.Transaction{}, err
	}
	s.logger.Info(ctx, "transaction reconciled", logger.String("transactionID", id))
	return s.ledger.Get(ctx, id)
}
