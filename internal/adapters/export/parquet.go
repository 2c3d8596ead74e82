// Package export writes ledger transactions to Parquet files for
// reconciliation with finance tooling, using github.com/parquet-go/parquet-go.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/parquet-go/parquet-go"
)

// ErrExport wraps every failure to produce an export file.
var ErrExport = errors.New("ledger export failed")

// LedgerRow is one ledger transaction as stored in the export file.
// Amounts are kept as fixed two-decimal strings so no precision is lost.
type LedgerRow struct {
	// TransactionID is the ledger transaction id
	TransactionID string `parquet:"transaction_id,snappy"`

	OperatorID string `parquet:"operator_id,snappy,dict"`
	Type       string `parquet:"type,snappy,dict"`

	// Amount is signed: credits positive, payouts and penalties negative
	Amount   string `parquet:"amount,snappy"`
	Currency string `parquet:"currency,snappy,dict"`

	BookingID      *string `parquet:"booking_id,optional,snappy"`
	PayoutID       *string `parquet:"payout_id,optional,snappy"`
	CommissionRate *string `parquet:"commission_rate,optional,snappy"`
	Tier           *string `parquet:"tier,optional,snappy"`

	Status          string    `parquet:"status,snappy,dict"`
	TransactionDate time.Time `parquet:"transaction_date,snappy"`
	Reconciled      bool      `parquet:"reconciled"`
	CreatedAt       time.Time `parquet:"created_at,snappy"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ConvertTransactions maps ledger transactions to export rows.
func ConvertTransactions(txs []model.Transaction) []LedgerRow {
	rows := make([]LedgerRow, len(txs))
	for i, tx := range txs {
		row := LedgerRow{
			TransactionID:   tx.ID,
			OperatorID:      tx.OperatorID,
			Type:            string(tx.Type),
			Amount:          money.Format(tx.Amount),
			Currency:        tx.Currency,
			BookingID:       optional(tx.BookingID),
			PayoutID:        optional(tx.PayoutID),
			Tier:            optional(string(tx.Tier)),
			Status:          string(tx.Status),
			TransactionDate: tx.TransactionDate.UTC(),
			Reconciled:      tx.Reconciled,
			CreatedAt:       tx.CreatedAt.UTC(),
		}
		if tx.CommissionRate != nil {
			row.CommissionRate = optional(tx.CommissionRate.String())
		}
		rows[i] = row
	}
	return rows
}

// WriteLedger writes rows to w as a single Parquet file.
func WriteLedger(w io.Writer, rows []LedgerRow) error {
	writer := parquet.NewGenericWriter[LedgerRow](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("%w: write rows: %w", ErrExport, err)
	}
	// Close flushes the last row group and the footer.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: close writer: %w", ErrExport, err)
	}
	return nil
}

// WriteLedgerFile creates path and writes txs to it. It returns the number
// of rows written.
func WriteLedgerFile(path string, txs []model.Transaction) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrExport, path, err)
	}

	rows := ConvertTransactions(txs)
	if err := WriteLedger(file, rows); err != nil {
		_ = file.Close()
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("%w: close %s: %w", ErrExport, path, err)
	}
	return len(rows), nil
}

// ReadLedgerFile reads every row of an export file.
func ReadLedgerFile(path string) ([]LedgerRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrExport, path, err)
	}
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[LedgerRow](file)
	defer func() { _ = reader.Close() }()

	rows := make([]LedgerRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read %s: %w", ErrExport, path, err)
	}
	return rows[:n], nil
}
