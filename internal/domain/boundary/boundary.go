// Package boundary computes and records drivers' daily boundary fees.
//
// Two fee models exist. Under the fixed-fee model the driver owes a base
// fee plus subsidies, allowances and a performance adjustment. Under the
// revenue-share model the operator keeps a percentage of the driver's
// gross earnings.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
	"github.com/okian/tnvs/pkg/validation"
	"github.com/shopspring/decimal"
)

// Fee models.
const (
	ModelFixed        = "fixed"
	ModelRevenueShare = "revenue_share"
)

// Submission is one driver-day settlement as reported by the operator.
type Submission struct {
	OperatorID             string           `json:"operator_id" validate:"required"`
	DriverID               string           `json:"driver_id" validate:"required"`
	FeeDate                string           `json:"fee_date" validate:"required,datetime=2006-01-02"`
	BaseBoundaryFee        *decimal.Decimal `json:"base_boundary_fee,omitempty" validate:"omitempty,gte=0"`
	FuelSubsidy            decimal.Decimal  `json:"fuel_subsidy" validate:"gte=0"`
	MaintenanceAllowance   decimal.Decimal  `json:"maintenance_allowance" validate:"gte=0"`
	OtherAdjustments       decimal.Decimal  `json:"other_adjustments"`
	TripsCompleted         int              `json:"trips_completed" validate:"gte=0"`
	HoursWorked            float64          `json:"hours_worked" validate:"gte=0"`
	DistanceCoveredKm      float64          `json:"distance_covered_km" validate:"gte=0"`
	DriverGrossEarnings    decimal.Decimal  `json:"driver_gross_earnings" validate:"gte=0"`
	RevenueSharePercentage *decimal.Decimal `json:"revenue_share_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	DriverPerformanceScore *float64         `json:"driver_performance_score,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Policy holds the configurable constants of the fee models.
type Policy struct {
	UpperThreshold         float64
	Reward                 decimal.Decimal
	LowerThreshold         float64
	Penalty                decimal.Decimal
	RevenueSharePercentage decimal.Decimal
}

// DefaultPolicy returns the standard adjustment policy.
func DefaultPolicy() Policy {
	return Policy{
		UpperThreshold:         85,
		Reward:                 money.MustParse("50.00"),
		LowerThreshold:         70,
		Penalty:                money.MustParse("50.00"),
		RevenueSharePercentage: decimal.NewFromInt(30),
	}
}

// PerformanceAdjustment returns the reward, penalty or zero for a driver score.
func (p Policy) PerformanceAdjustment(score *float64) decimal.Decimal {
	switch {
	case score == nil:
		return decimal.Zero
	case *score >= p.UpperThreshold:
		return p.Reward
	case *score < p.LowerThreshold:
		return p.Penalty.Neg()
	default:
		return decimal.Zero
	}
}

// Compute validates s and derives the fee record. It does not persist anything.
func (p Policy) Compute(s Submission) (model.BoundaryFee, error) {
	violations, err := validation.Struct(s)
	if err != nil {
		return model.BoundaryFee{}, fmt.Errorf("%w: %v", ErrInvalidBoundaryFeeData, err)
	}
	if len(violations) > 0 {
		fields := make([]FieldError, len(violations))
		for i, v := range violations {
			fields[i] = FieldError{Field: v.Field, Reason: v.Reason}
		}
		return model.BoundaryFee{}, &InvalidDataError{Fields: fields}
	}

	day, err := time.Parse(time.DateOnly, s.FeeDate)
	if err != nil {
		return model.BoundaryFee{}, &InvalidDataError{Fields: []FieldError{{Field: "fee_date", Reason: "must match 2006-01-02"}}}
	}

	fee := model.BoundaryFee{
		OperatorID:            s.OperatorID,
		DriverID:              s.DriverID,
		FeeDate:               day,
		BaseFee:               decimal.Zero,
		Subsidies:             s.FuelSubsidy,
		Allowances:            s.MaintenanceAllowance,
		OtherAdjustments:      s.OtherAdjustments,
		PerformanceAdjustment: decimal.Zero,
		RevenueShareAmount:    decimal.Zero,
		TripsCompleted:        s.TripsCompleted,
		HoursWorked:           s.HoursWorked,
		DistanceKm:            s.DistanceCoveredKm,
	}

	if s.BaseBoundaryFee != nil && s.BaseBoundaryFee.IsPositive() {
		fee.Model = ModelFixed
		fee.BaseFee = *s.BaseBoundaryFee
		fee.PerformanceAdjustment = p.PerformanceAdjustment(s.DriverPerformanceScore)
		fee.TotalAmount = money.Round(money.Sum(
			fee.BaseFee, fee.Subsidies, fee.Allowances, fee.OtherAdjustments, fee.PerformanceAdjustment,
		))
	} else {
		share := p.RevenueSharePercentage
		if s.RevenueSharePercentage != nil {
			share = *s.RevenueSharePercentage
		}
		fee.Model = ModelRevenueShare
		fee.RevenueShareAmount = money.Round(money.Percent(s.DriverGrossEarnings, share))
		fee.TotalAmount = fee.RevenueShareAmount
	}

	if fee.TotalAmount.IsNegative() {
		return model.BoundaryFee{}, &InvalidDataError{Fields: []FieldError{{Field: "total_amount", Reason: "must be >= 0"}}}
	}
	return fee, nil
}

// Store persists boundary fees. Save rejects a second fee for the same
// (driver, date) with ErrDuplicateBoundaryFee.
type Store interface {
	Save(ctx context.Context, fee model.BoundaryFee) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (model.BoundaryFee, error)
	ListByOperator(ctx context.Context, operatorID string) ([]model.BoundaryFee, error)
}

// ProcessorOption applies a configuration option to the Processor.
type ProcessorOption func(*Processor)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) ProcessorOption {
	return func(pr *Processor) { pr.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ProcessorOption {
	return func(pr *Processor) {
		if l != nil {
			pr.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ProcessorOption {
	return func(pr *Processor) {
		if now != nil {
			pr.now = now
		}
	}
}

// Processor records boundary fees and credits them to the operator's wallet.
// Callers hold the operator lock around Record.
type Processor struct {
	policy Policy
	store  Store
	ledger *ledger.Ledger
	now    func() time.Time
	log    logger.Logger
}

// NewProcessor creates a processor over store and l.
func NewProcessor(store Store, l *ledger.Ledger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		policy: DefaultPolicy(),
		store:  store,
		ledger: l,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the active policy.
func (p *Processor) Policy() Policy { return p.policy }

// Record computes, stores and credits one submission. If the ledger credit
// fails the stored fee is removed again.
func (p *Processor) Record(ctx context.Context, s Submission) (model.BoundaryFee, error) {
	fee, err := p.policy.Compute(s)
	if err != nil {
		return model.BoundaryFee{}, err
	}
	fee.ID = uuid.NewString()
	fee.TransactionID = uuid.NewString()
	fee.CreatedAt = p.now()

	if err := p.store.Save(ctx, fee); err != nil {
		return model.BoundaryFee{}, err
	}

	_, err = p.ledger.Post(ctx, model.Transaction{
		ID:              fee.TransactionID,
		OperatorID:      fee.OperatorID,
		Type:            model.BoundaryFeeTx,
		Amount:          fee.TotalAmount,
		TransactionDate: fee.FeeDate,
		CalculationDetails: map[string]string{
			"boundary_fee_id": fee.ID,
			"driver_id":       fee.DriverID,
			"model":           fee.Model,
		},
	})
	if err != nil {
		if delErr := p.store.Delete(ctx, fee.ID); delErr != nil {
			err = errors.Join(err, fmt.Errorf("remove boundary fee %s: %w", fee.ID, delErr))
		}
		return model.BoundaryFee{}, err
	}

	metrics.RecordBoundaryFee(fee.Model)
	p.log.Info(ctx, "boundary fee recorded",
		logger.String("operatorID", fee.OperatorID),
		logger.String("driverID", fee.DriverID),
		logger.String("feeDate", s.FeeDate),
		logger.String("model", fee.Model),
		logger.Decimal("total", fee.TotalAmount))
	return fee, nil
}

// Get returns one stored fee.
func (p *Processor) Get(ctx context.Context, id string) (model.BoundaryFee, error) {
	return p.store.Get(ctx, id)
}

// ListByOperator returns the operator's fees ordered by fee date.
func (p *Processor) ListByOperator(ctx context.Context, operatorID string) ([]model.BoundaryFee, error) {
	return p.store.ListByOperator(ctx, operatorID)
}
