package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus is a payout lifecycle state.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutApproved   PayoutStatus = "approved"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Open reports whether the payout still reserves wallet balance.
func (s PayoutStatus) Open() bool {
	return s == PayoutPending || s == PayoutApproved || s == PayoutProcessing
}

// PaymentMethod selects how a payout is delivered.
type PaymentMethod string

const (
	BankTransfer PaymentMethod = "bank_transfer"
	EWallet      PaymentMethod = "e_wallet"
)

// Destination holds where the money goes. Which fields are required
// depends on the payment method.
type Destination struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	Provider      string `json:"provider,omitempty"`
	MobileNumber  string `json:"mobile_number,omitempty"`
}

// Payout is an operator withdrawal moving through approval and execution.
type Payout struct {
	ID                string          `json:"id"`
	OperatorID        string          `json:"operator_id"`
	PeriodStart       time.Time       `json:"period_start"`
	PeriodEnd         time.Time       `json:"period_end"`
	CommissionsAmount decimal.Decimal `json:"commissions_amount"`
	BonusesAmount     decimal.Decimal `json:"bonuses_amount"`
	AdjustmentsAmount decimal.Decimal `json:"adjustments_amount"`
	PenaltiesDeducted decimal.Decimal `json:"penalties_deducted"`
	TaxWithheld       decimal.Decimal `json:"tax_withheld"`
	OtherDeductions   decimal.Decimal `json:"other_deductions"`
	PayoutAmount      decimal.Decimal `json:"payout_amount"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	Destination       Destination     `json:"destination"`
	Status            PayoutStatus    `json:"status"`
	ApprovedBy        string          `json:"approved_by,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	GatewayReference  string          `json:"gateway_reference,omitempty"`
	TransactionID     string          `json:"transaction_id,omitempty"`
	RequestedAt       time.Time       `json:"requested_at"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	FailedAt          *time.Time      `json:"failed_at,omitempty"`
}
