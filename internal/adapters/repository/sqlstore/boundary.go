package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/shopspring/decimal"
)

const feeColumns = `id, operator_id, driver_id, fee_date, model, base_fee, subsidies, allowances,
	other_adjustments, performance_adjustment, revenue_share_amount, total_amount,
	trips_completed, hours_worked, distance_km, transaction_id, created_at`

// BoundaryFeeStore implements boundary.Store on the boundary_fees table.
// The (driver_id, fee_date) unique key enforces one fee per driver and day.
type BoundaryFeeStore struct {
	s *Store
}

var _ boundary.Store = &BoundaryFeeStore{} // Compile-time check

func (b *BoundaryFeeStore) Save(ctx context.Context, fee model.BoundaryFee) error {
	_, err := b.s.exec(ctx,
		`INSERT INTO boundary_fees (`+feeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fee.ID, fee.OperatorID, fee.DriverID, fee.FeeDate.Format(time.DateOnly), fee.Model,
		fee.BaseFee.String(), fee.Subsidies.String(), fee.Allowances.String(),
		fee.OtherAdjustments.String(), fee.PerformanceAdjustment.String(),
		fee.RevenueShareAmount.String(), fee.TotalAmount.String(),
		fee.TripsCompleted, fee.HoursWorked, fee.DistanceKm, fee.TransactionID, formatTime(fee.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: driver %s on %s", boundary.ErrDuplicateBoundaryFee, fee.DriverID, fee.FeeDate.Format(time.DateOnly))
	}
	if err != nil {
		return fmt.Errorf("insert boundary fee: %w", err)
	}
	return nil
}

func (b *BoundaryFeeStore) Delete(ctx context.Context, id string) error {
	res, err := b.s.exec(ctx, `DELETE FROM boundary_fees WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete boundary fee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", boundary.ErrNotFound, id)
	}
	return nil
}

func (b *BoundaryFeeStore) Get(ctx context.Context, id string) (model.BoundaryFee, error) {
	fee, err := scanFee(b.s.queryRow(ctx, `SELECT `+feeColumns+` FROM boundary_fees WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.BoundaryFee{}, fmt.Errorf("%w: %s", boundary.ErrNotFound, id)
	}
	return fee, err
}

// ListByOperator orders fees by date, then driver.
func (b *BoundaryFeeStore) ListByOperator(ctx context.Context, operatorID string) ([]model.BoundaryFee, error) {
	rows, err := b.s.query(ctx,
		`SELECT `+feeColumns+` FROM boundary_fees WHERE operator_id = ? ORDER BY fee_date, driver_id`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("list boundary fees: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.BoundaryFee{}
	for rows.Next() {
		fee, err := scanFee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fee)
	}
	return out, rows.Err()
}

func scanFee(r rowScanner) (model.BoundaryFee, error) {
	var (
		fee         model.BoundaryFee
		feeDate, at string
		amounts     [7]string
	)
	err := r.Scan(&fee.ID, &fee.OperatorID, &fee.DriverID, &feeDate, &fee.Model,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5], &amounts[6],
		&fee.TripsCompleted, &fee.HoursWorked, &fee.DistanceKm, &fee.TransactionID, &at)
	if err != nil {
		return model.BoundaryFee{}, err
	}

	targets := []*decimal.Decimal{
		&fee.BaseFee, &fee.Subsidies, &fee.Allowances, &fee.OtherAdjustments,
		&fee.PerformanceAdjustment, &fee.RevenueShareAmount, &fee.TotalAmount,
	}
	for i, raw := range amounts {
		if *targets[i], err = decimal.NewFromString(raw); err != nil {
			return model.BoundaryFee{}, fmt.Errorf("parse stored amount %q: %w", raw, err)
		}
	}
	if fee.FeeDate, err = time.Parse(time.DateOnly, feeDate); err != nil {
		return model.BoundaryFee{}, fmt.Errorf("parse fee date %q: %w", feeDate, err)
	}
	if fee.CreatedAt, err = parseTime(at); err != nil {
		return model.BoundaryFee{}, err
	}
	return fee, nil
}
