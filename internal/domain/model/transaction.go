package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger row.
type TransactionType string

const (
	CommissionEarned TransactionType = "commission_earned"
	IncentiveBonus   TransactionType = "incentive_bonus"
	PenaltyDeduction TransactionType = "penalty_deduction"
	ManualAdjustment TransactionType = "manual_adjustment"
	BoundaryFeeTx    TransactionType = "boundary_fee"
	PayoutTx         TransactionType = "payout"
)

// TransactionTypes lists every ledger type.
var TransactionTypes = []TransactionType{
	CommissionEarned, IncentiveBonus, PenaltyDeduction, ManualAdjustment, BoundaryFeeTx, PayoutTx,
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransactionStatus is the posting status of a ledger row.
type TransactionStatus string

const (
	Posted   TransactionStatus = "posted"
	Reversed TransactionStatus = "reversed"
)

// Transaction is one append-only ledger row. Amount is signed: credits are
// positive, penalties and payouts negative.
type Transaction struct {
	ID                 string            `json:"id"`
	OperatorID         string            `json:"operator_id"`
	Type               TransactionType   `json:"type"`
	Amount             decimal.Decimal   `json:"amount"`
	Currency           string            `json:"currency"`
	BookingID          string            `json:"booking_id,omitempty"`
	PayoutID           string            `json:"payout_id,omitempty"`
	CommissionRate     *decimal.Decimal  `json:"commission_rate,omitempty"`
	Tier               Tier              `json:"tier,omitempty"`
	CalculationDetails map[string]string `json:"calculation_details,omitempty"`
	Status             TransactionStatus `json:"status"`
	TransactionDate    time.Time         `json:"transaction_date"`
	Reconciled         bool              `json:"reconciled"`
	CreatedAt          time.Time         `json:"created_at"`
}

// BookingEvent is a completed booking delivered at least once by the
// booking collaborator.
type BookingEvent struct {
	OperatorID      string          `json:"operator_id" validate:"required"`
	BookingID       string          `json:"booking_id" validate:"required"`
	BaseFare        decimal.Decimal `json:"base_fare"`
	BonusPercentage decimal.Decimal `json:"bonus_percentage"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// BoundaryFee is a driver's daily settlement to the operator. One per (driver, date).
type BoundaryFee struct {
	ID                    string          `json:"id"`
	OperatorID            string          `json:"operator_id"`
	DriverID              string          `json:"driver_id"`
	FeeDate               time.Time       `json:"fee_date"`
	Model                 string          `json:"model"`
	BaseFee               decimal.Decimal `json:"base_fee"`
	Subsidies             decimal.Decimal `json:"subsidies"`
	Allowances            decimal.Decimal `json:"allowances"`
	OtherAdjustments      decimal.Decimal `json:"other_adjustments"`
	PerformanceAdjustment decimal.Decimal `json:"performance_adjustment"`
	RevenueShareAmount    decimal.Decimal `json:"revenue_share_amount"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	TripsCompleted        int             `json:"trips_completed"`
	HoursWorked           float64         `json:"hours_worked"`
	DistanceKm            float64         `json:"distance_km"`
	TransactionID         string          `json:"transaction_id"`
	CreatedAt             time.Time       `json:"created_at"`
}
