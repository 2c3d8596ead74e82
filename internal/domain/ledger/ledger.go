// Package ledger keeps the append-only record of operator money movements
// and derives wallet balances from it.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Store persists ledger rows. Implementations must reject a second row
// with the same non-empty BookingID with ErrDuplicateTransaction.
type Store interface {
	Append(ctx context.Context, tx model.Transaction) error
	Get(ctx context.Context, id string) (model.Transaction, error)
	FindByBooking(ctx context.Context, bookingID string) (model.Transaction, error)
	List(ctx context.Context, operatorID string, f Filter) ([]model.Transaction, error)
	Balance(ctx context.Context, operatorID string) (decimal.Decimal, error)
	MarkReconciled(ctx context.Context, id string) error
}

// Filter narrows List results. Zero values mean "no bound".
type Filter struct {
	From  time.Time
	To    time.Time
	Types []model.TransactionType
	Limit int
}

// Matches reports whether tx passes the filter. From and To are inclusive.
func (f Filter) Matches(tx model.Transaction) bool {
	if !f.From.IsZero() && tx.TransactionDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.TransactionDate.After(f.To) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if tx.Type == t {
			return true
		}
	}
	return false
}

// BalanceOf sums the amounts of every non-reversed transaction.
func BalanceOf(txs []model.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Status == model.Reversed {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total
}

// Totals groups posted amounts by type. Penalties are reported as a
// positive magnitude.
type Totals struct {
	Commissions  decimal.Decimal
	Bonuses      decimal.Decimal
	Adjustments  decimal.Decimal
	Penalties    decimal.Decimal
	BoundaryFees decimal.Decimal
	Payouts      decimal.Decimal
}

// Summarize aggregates txs by transaction type, skipping reversed rows.
func Summarize(txs []model.Transaction) Totals {
	t := Totals{
		Commissions: decimal.Zero, Bonuses: decimal.Zero, Adjustments: decimal.Zero,
		Penalties: decimal.Zero, BoundaryFees: decimal.Zero, Payouts: decimal.Zero,
	}
	for _, tx := range txs {
		if tx.Status == model.Reversed {
			continue
		}
		switch tx.Type {
		case model.CommissionEarned:
			t.Commissions = t.Commissions.Add(tx.Amount)
		case model.IncentiveBonus:
			t.Bonuses = t.Bonuses.Add(tx.Amount)
		case model.ManualAdjustment:
			t.Adjustments = t.Adjustments.Add(tx.Amount)
		case model.PenaltyDeduction:
			t.Penalties = t.Penalties.Add(tx.Amount.Abs())
		case model.BoundaryFeeTx:
			t.BoundaryFees = t.BoundaryFees.Add(tx.Amount)
		case model.PayoutTx:
			t.Payouts = t.Payouts.Add(tx.Amount)
		}
	}
	return t
}

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides the transaction id source.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// Ledger stamps, checks and appends transactions on top of a Store.
// Callers serialise writes per operator.
type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
	log   logger.Logger
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post fills in id, currency, status and timestamps, checks sign rules and
// appends tx. The stored row is returned.
func (l *Ledger) Post(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	now := l.now()
	if tx.ID == "" {
		tx.ID = l.newID()
	}
	if tx.Currency == "" {
		tx.Currency = money.Currency
	}
	if tx.Status == "" {
		tx.Status = model.Posted
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = now
	}
	tx.CreatedAt = now
	tx.Amount = money.Round(tx.Amount)

	if err := validate(tx); err != nil {
		return model.Transaction{}, err
	}
	if err := l.store.Append(ctx, tx); err != nil {
		return model.Transaction{}, err
	}
	metrics.RecordLedgerAppend(string(tx.Type))
	l.log.Debug(ctx, "ledger transaction appended",
		logger.String("operatorID", tx.OperatorID),
		logger.String("transactionID", tx.ID),
		logger.String("type", string(tx.Type)),
		logger.Decimal("amount", tx.Amount))
	return tx, nil
}

func validate(tx model.Transaction) error {
	if strings.TrimSpace(tx.OperatorID) == "" {
		return fmt.Errorf("%w: operator id is required", ErrInvalidTransaction)
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, tx.Type)
	}
	if tx.Currency != money.Currency {
		return fmt.Errorf("%w: currency %q", ErrInvalidTransaction, tx.Currency)
	}
	switch tx.Type {
	case model.CommissionEarned, model.IncentiveBonus, model.BoundaryFeeTx:
		if tx.Amount.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidTransaction, tx.Type)
		}
	case model.PenaltyDeduction, model.PayoutTx:
		if tx.Amount.IsPositive() {
			return fmt.Errorf("%w: %s must not be positive", ErrInvalidTransaction, tx.Type)
		}
	}
	return nil
}

// PostAdjustment records a manual bonus, penalty or adjustment.
// Bonuses must be positive. Penalties are stored negative whichever sign
// is passed. Adjustments keep their sign but must not be zero.
func (l *Ledger) PostAdjustment(ctx context.Context, operatorID string, t model.TransactionType, amount decimal.Decimal, reason string) (model.Transaction, error) {
	amount = money.Round(amount)
	switch t {
	case model.IncentiveBonus:
		if !amount.IsPositive() {
			return model.Transaction{}, fmt.Errorf("%w: bonus must be positive", ErrInvalidAdjustment)
		}
	case model.PenaltyDeduction:
		if amount.IsZero() {
			return model.Transaction{}, fmt.Errorf("%w: penalty must not be zero", ErrInvalidAdjustment)
		}
		amount = amount.Abs().Neg()
	case model.ManualAdjustment:
		if amount.IsZero() {
			return model.Transaction{}, fmt.Errorf("%w: adjustment must not be zero", ErrInvalidAdjustment)
		}
	default:
		return model.Transaction{}, fmt.Errorf("%w: type %q is not adjustable", ErrInvalidAdjustment, t)
	}
	if strings.TrimSpace(reason) == "" {
		return model.Transaction{}, fmt.Errorf("%w: reason is required", ErrInvalidAdjustment)
	}
	return l.Post(ctx, model.Transaction{
		OperatorID:         operatorID,
		Type:               t,
		Amount:             amount,
		CalculationDetails: map[string]string{"reason": reason},
	})
}

// Balance returns the wallet balance of an operator.
func (l *Ledger) Balance(ctx context.Context, operatorID string) (decimal.Decimal, error) {
	return l.store.Balance(ctx, operatorID)
}

// List returns the operator's transactions matching f, oldest first.
func (l *Ledger) List(ctx context.Context, operatorID string, f Filter) ([]model.Transaction, error) {
	return l.store.List(ctx, operatorID, f)
}

// Get returns one transaction.
func (l *Ledger) Get(ctx context.Context, id string) (model.Transaction, error) {
	return l.store.Get(ctx, id)
}

// FindByBooking returns the transaction recorded for a booking.
func (l *Ledger) FindByBooking(ctx context.Context, bookingID string) (model.Transaction, error) {
	return l.store.FindByBooking(ctx, bookingID)
}

// MarkReconciled flags a transaction as matched against an external statement.
func (l *Ledger) MarkReconciled(ctx context.Context, id string) error {
	return l.store.MarkReconciled(ctx, id)
}
