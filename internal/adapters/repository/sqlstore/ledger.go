package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/shopspring/decimal"
)

const txColumns = `id, operator_id, type, amount, currency, booking_id, payout_id,
	commission_rate, tier, calculation_details, status, transaction_date, reconciled, created_at`

// LedgerStore implements ledger.Store on the ledger_transactions table.
type LedgerStore struct {
	s *Store
}

var _ ledger.Store = &LedgerStore{} // Compile-time check

func (l *LedgerStore) Append(ctx context.Context, tx model.Transaction) error {
	var details any
	if len(tx.CalculationDetails) > 0 {
		b, err := json.Marshal(tx.CalculationDetails)
		if err != nil {
			return fmt.Errorf("encode calculation details: %w", err)
		}
		details = string(b)
	}
	var rate any
	if tx.CommissionRate != nil {
		rate = tx.CommissionRate.String()
	}

	_, err := l.s.exec(ctx,
		`INSERT INTO ledger_transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OperatorID, string(tx.Type), tx.Amount.String(), tx.Currency,
		nullString(tx.BookingID), nullString(tx.PayoutID), rate, nullString(string(tx.Tier)),
		details, string(tx.Status), formatTime(tx.TransactionDate), tx.Reconciled, formatTime(tx.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: id %s booking %q", ledger.ErrDuplicateTransaction, tx.ID, tx.BookingID)
	}
	if err != nil {
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

func (l *LedgerStore) Get(ctx context.Context, id string) (model.Transaction, error) {
	row := l.s.queryRow(ctx, `SELECT `+txColumns+` FROM ledger_transactions WHERE id = ?`, id)
	tx, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return tx, err
}

func (l *LedgerStore) FindByBooking(ctx context.Context, bookingID string) (model.Transaction, error) {
	row := l.s.queryRow(ctx, `SELECT `+txColumns+` FROM ledger_transactions WHERE booking_id = ?`, bookingID)
	tx, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transaction{}, fmt.Errorf("%w: booking %s", ledger.ErrNotFound, bookingID)
	}
	return tx, err
}

// List returns matching rows in append order.
func (l *LedgerStore) List(ctx context.Context, operatorID string, f ledger.Filter) ([]model.Transaction, error) {
	var (
		sb   strings.Builder
		args = []any{operatorID}
	)
	sb.WriteString(`SELECT ` + txColumns + ` FROM ledger_transactions WHERE operator_id = ?`)
	if !f.From.IsZero() {
		sb.WriteString(` AND transaction_date >= ?`)
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		sb.WriteString(` AND transaction_date <= ?`)
		args = append(args, formatTime(f.To))
	}
	if len(f.Types) > 0 {
		sb.WriteString(` AND type IN (?` + strings.Repeat(", ?", len(f.Types)-1) + `)`)
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	sb.WriteString(` ORDER BY seq`)
	if f.Limit > 0 {
		fmt.Fprintf(&sb, ` LIMIT %d`, f.Limit)
	}

	rows, err := l.s.query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Transaction{}
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Balance sums non-reversed rows in Go so no backend rounds the amounts.
func (l *LedgerStore) Balance(ctx context.Context, operatorID string) (decimal.Decimal, error) {
	rows, err := l.s.query(ctx,
		`SELECT amount FROM ledger_transactions WHERE operator_id = ? AND status <> ?`,
		operatorID, string(model.Reversed))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse stored amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

func (l *LedgerStore) MarkReconciled(ctx context.Context, id string) error {
	res, err := l.s.exec(ctx, `UPDATE ledger_transactions SET reconciled = ? WHERE id = ?`, true, id)
	if err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := l.s.exists(ctx, "ledger_transactions", id)
	if err != nil {
		return fmt.Errorf("mark reconciled: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return nil
}

func scanTx(r rowScanner) (model.Transaction, error) {
	var (
		tx                      model.Transaction
		typ, amount, status     string
		txDate, createdAt       string
		booking, payoutID, rate sql.NullString
		tier, details           sql.NullString
	)
	err := r.Scan(&tx.ID, &tx.OperatorID, &typ, &amount, &tx.Currency, &booking, &payoutID,
		&rate, &tier, &details, &status, &txDate, &tx.Reconciled, &createdAt)
	if err != nil {
		return model.Transaction{}, err
	}

	tx.Type = model.TransactionType(typ)
	tx.Status = model.TransactionStatus(status)
	tx.BookingID = booking.String
	tx.PayoutID = payoutID.String
	tx.Tier = model.Tier(tier.String)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Transaction{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	if rate.Valid {
		r, err := decimal.NewFromString(rate.String)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("parse stored rate %q: %w", rate.String, err)
		}
		tx.CommissionRate = &r
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &tx.CalculationDetails); err != nil {
			return model.Transaction{}, fmt.Errorf("decode calculation details: %w", err)
		}
	}
	if tx.TransactionDate, err = parseTime(txDate); err != nil {
		return model.Transaction{}, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}
