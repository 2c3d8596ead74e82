package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/shopspring/decimal"
)

const payoutColumns = `id, operator_id, period_start, period_end, commissions_amount, bonuses_amount,
	adjustments_amount, penalties_deducted, tax_withheld, other_deductions, payout_amount,
	payment_method, destination, status, approved_by, failure_reason, gateway_reference,
	transaction_id, requested_at, approved_at, processed_at, completed_at, failed_at`

// PayoutStore implements payout.Store on the payouts table.
type PayoutStore struct {
	s *Store
}

var _ payout.Store = &PayoutStore{} // Compile-time check

func (ps *PayoutStore) Create(ctx context.Context, p model.Payout) error {
	args, err := payoutArgs(p)
	if err != nil {
		return err
	}
	_, err = ps.s.exec(ctx,
		`INSERT INTO payouts (`+payoutColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{p.ID}, args...)...)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (ps *PayoutStore) Update(ctx context.Context, p model.Payout) error {
	args, err := payoutArgs(p)
	if err != nil {
		return err
	}
	res, err := ps.s.exec(ctx,
		`UPDATE payouts SET operator_id = ?, period_start = ?, period_end = ?, commissions_amount = ?,
		bonuses_amount = ?, adjustments_amount = ?, penalties_deducted = ?, tax_withheld = ?,
		other_deductions = ?, payout_amount = ?, payment_method = ?, destination = ?, status = ?,
		approved_by = ?, failure_reason = ?, gateway_reference = ?, transaction_id = ?,
		requested_at = ?, approved_at = ?, processed_at = ?, completed_at = ?, failed_at = ?
		WHERE id = ?`,
		append(args, p.ID)...)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := ps.s.exists(ctx, "payouts", p.ID)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", payout.ErrNotFound, p.ID)
	}
	return nil
}

// ClaimForProcessing flips approved to processing only when no other
// engine has claimed the row.
func (ps *PayoutStore) ClaimForProcessing(ctx context.Context, id string, at time.Time) (model.Payout, error) {
	res, err := ps.s.exec(ctx,
		`UPDATE payouts SET status = ?, processed_at = ? WHERE id = ? AND status = ?`,
		string(model.PayoutProcessing), formatTime(at), id, string(model.PayoutApproved))
	if err != nil {
		return model.Payout{}, fmt.Errorf("claim payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Payout{}, fmt.Errorf("claim payout: %w", err)
	}
	if n != 1 {
		current, err := ps.Get(ctx, id)
		if err != nil {
			return model.Payout{}, err
		}
		return model.Payout{}, fmt.Errorf("%w: %s is %s", payout.ErrInvalidState, id, current.Status)
	}
	return ps.Get(ctx, id)
}

func (ps *PayoutStore) Get(ctx context.Context, id string) (model.Payout, error) {
	p, err := scanPayout(ps.s.queryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payout{}, fmt.Errorf("%w: %s", payout.ErrNotFound, id)
	}
	return p, err
}

func (ps *PayoutStore) ListByOperator(ctx context.Context, operatorID string) ([]model.Payout, error) {
	return ps.list(ctx, `operator_id = ?`, operatorID)
}

func (ps *PayoutStore) ListByStatus(ctx context.Context, status model.PayoutStatus) ([]model.Payout, error) {
	return ps.list(ctx, `status = ?`, string(status))
}

// list returns payouts in creation order.
func (ps *PayoutStore) list(ctx context.Context, where string, arg any) ([]model.Payout, error) {
	rows, err := ps.s.query(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE `+where+` ORDER BY seq`, arg)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Payout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// payoutArgs returns every column after id, in payoutColumns order.
func payoutArgs(p model.Payout) ([]any, error) {
	dest, err := json.Marshal(p.Destination)
	if err != nil {
		return nil, fmt.Errorf("encode destination: %w", err)
	}
	return []any{
		p.OperatorID, formatTime(p.PeriodStart), formatTime(p.PeriodEnd),
		p.CommissionsAmount.String(), p.BonusesAmount.String(), p.AdjustmentsAmount.String(),
		p.PenaltiesDeducted.String(), p.TaxWithheld.String(), p.OtherDeductions.String(),
		p.PayoutAmount.String(), string(p.PaymentMethod), string(dest), string(p.Status),
		nullString(p.ApprovedBy), nullString(p.FailureReason), nullString(p.GatewayReference),
		nullString(p.TransactionID), formatTime(p.RequestedAt),
		formatNullTime(p.ApprovedAt), formatNullTime(p.ProcessedAt),
		formatNullTime(p.CompletedAt), formatNullTime(p.FailedAt),
	}, nil
}

func scanPayout(r rowScanner) (model.Payout, error) {
	var (
		p                                  model.Payout
		start, end, requested              string
		amounts                            [7]string
		method, dest, status               string
		approvedBy, reason, ref, txID      sql.NullString
		approved, processed, completed, ko sql.NullString
	)
	err := r.Scan(&p.ID, &p.OperatorID, &start, &end,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5], &amounts[6],
		&method, &dest, &status, &approvedBy, &reason, &ref, &txID,
		&requested, &approved, &processed, &completed, &ko)
	if err != nil {
		return model.Payout{}, err
	}

	p.PaymentMethod = model.PaymentMethod(method)
	p.Status = model.PayoutStatus(status)
	p.ApprovedBy = approvedBy.String
	p.FailureReason = reason.String
	p.GatewayReference = ref.String
	p.TransactionID = txID.String
	if err := json.Unmarshal([]byte(dest), &p.Destination); err != nil {
		return model.Payout{}, fmt.Errorf("decode destination: %w", err)
	}

	targets := []*decimal.Decimal{
		&p.CommissionsAmount, &p.BonusesAmount, &p.AdjustmentsAmount, &p.PenaltiesDeducted,
		&p.TaxWithheld, &p.OtherDeductions, &p.PayoutAmount,
	}
	for i, raw := range amounts {
		if *targets[i], err = decimal.NewFromString(raw); err != nil {
			return model.Payout{}, fmt.Errorf("parse stored amount %q: %w", raw, err)
		}
	}

	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{start, &p.PeriodStart}, {end, &p.PeriodEnd}, {requested, &p.RequestedAt}} {
		if *f.dst, err = parseTime(f.raw); err != nil {
			return model.Payout{}, err
		}
	}
	for _, f := range []struct {
		raw sql.NullString
		dst **time.Time
	}{{approved, &p.ApprovedAt}, {processed, &p.ProcessedAt}, {completed, &p.CompletedAt}, {ko, &p.FailedAt}} {
		if !f.raw.Valid {
			continue
		}
		t, err := parseTime(f.raw.String)
		if err != nil {
			return model.Payout{}, err
		}
		*f.dst = &t
	}
	return p, nil
}
