// Package report renders scores and ledgers as console tables for the CLI.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/internal/domain/scoring"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Console colors by outcome.
var (
	GoodColor    = color.New(color.FgGreen, color.Bold)
	WatchColor   = color.New(color.FgYellow)
	WarnColor    = color.New(color.FgMagenta, color.Bold)
	BadColor     = color.New(color.FgRed, color.Bold)
	NeutralColor = color.New(color.FgCyan)
)

// StatusLabel colors a qualification status.
func StatusLabel(s model.QualificationStatus) string {
	switch s {
	case model.Qualified:
		return GoodColor.Sprint(s)
	case model.UnderReview:
		return WatchColor.Sprint(s)
	case model.Probationary:
		return WarnColor.Sprint(s)
	case model.Disqualified:
		return BadColor.Sprint(s)
	default:
		return NeutralColor.Sprint(s)
	}
}

// AmountLabel colors an amount by sign.
func AmountLabel(s string) string {
	if len(s) > 0 && s[0] == '-' {
		return BadColor.Sprint(s)
	}
	return s
}

var categories = []model.Category{
	model.VehicleUtilization,
	model.DriverManagement,
	model.ComplianceSafety,
	model.PlatformContribution,
}

func categoryScore(ps model.PerformanceScore, c model.Category) float64 {
	switch c {
	case model.VehicleUtilization:
		return ps.VehicleUtilization
	case model.DriverManagement:
		return ps.DriverManagement
	case model.ComplianceSafety:
		return ps.ComplianceSafety
	default:
		return ps.PlatformContribution
	}
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// WriteScore writes the per-metric and per-category breakdown of a score
// followed by a one-line tier summary.
func WriteScore(w io.Writer, res service.ScoreResult) error {
	ps := res.Score

	metricsTable := tablewriter.NewWriter(w)
	metricsTable.Header([]string{"Metric", "Category", "Raw", "Normalized"})
	metricsTable.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var rows [][]string
	for _, d := range metric.Definitions() {
		rows = append(rows, []string{
			d.Name,
			string(d.Category),
			fmtFloat(ps.MetricSnapshot[d.Name]),
			fmtFloat(res.Normalized[d.Name]),
		})
	}
	if err := metricsTable.Bulk(rows); err != nil {
		return err
	}
	if err := metricsTable.Render(); err != nil {
		return err
	}

	catTable := tablewriter.NewWriter(w)
	catTable.Header([]string{"Category", "Points", "Cap"})
	catTable.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	rows = rows[:0]
	for _, c := range categories {
		rows = append(rows, []string{string(c), fmtFloat(categoryScore(ps, c)), fmtFloat(scoring.Cap(c))})
	}
	rows = append(rows, []string{"total", fmtFloat(ps.TotalScore), "100.00"})
	if err := catTable.Bulk(rows); err != nil {
		return err
	}
	if err := catTable.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s %s (%s): tier %s, %s, data quality %.0f%%\n",
		ps.OperatorID, ps.Period, ps.Frequency, ps.Tier, StatusLabel(ps.QualificationStatus), res.Quality*100)
	return err
}

// WriteLedger writes an operator's transactions and a wallet summary.
func WriteLedger(w io.Writer, wallet service.Wallet, txs []model.Transaction) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Date", "Type", "Amount", "Reference", "Reconciled"})

	var rows [][]string
	for _, tx := range txs {
		ref := tx.BookingID
		if ref == "" {
			ref = tx.PayoutID
		}
		reconciled := ""
		if tx.Reconciled {
			reconciled = "yes"
		}
		rows = append(rows, []string{
			tx.TransactionDate.UTC().Format("2006-01-02 15:04"),
			string(tx.Type),
			AmountLabel(money.Format(tx.Amount)),
			ref,
			reconciled,
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s: %d transactions, balance %s %s, reserved %s, available %s\n",
		wallet.OperatorID, len(txs), money.Format(wallet.Balance), wallet.Currency,
		money.Format(wallet.Reserved), GoodColor.Sprint(money.Format(wallet.Available)))
	return err
}
