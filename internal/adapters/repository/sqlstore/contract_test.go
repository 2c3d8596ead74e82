package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/tnvs/internal/adapters/repository/sqlstore"
	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/okian/tnvs/internal/domain/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 6, 1, 8, 30, 0, 123456789, time.UTC)

// exerciseStore runs the shared persistence checks against any backend.
func exerciseStore(t *testing.T, s *sqlstore.Store) {
	t.Helper()
	t.Run("ledger", func(t *testing.T) { checkLedger(t, s.Ledger()) })
	t.Run("scores", func(t *testing.T) { checkScores(t, s.Scores()) })
	t.Run("boundary_fees", func(t *testing.T) { checkBoundaryFees(t, s.BoundaryFees()) })
	t.Run("payouts", func(t *testing.T) { checkPayouts(t, s.Payouts()) })
}

func row(id, op string, typ model.TransactionType, amount string, at time.Time) model.Transaction {
	return model.Transaction{
		ID: id, OperatorID: op, Type: typ, Amount: money.MustParse(amount),
		Currency: money.Currency, Status: model.Posted, TransactionDate: at, CreatedAt: at,
	}
}

func checkLedger(t *testing.T, l ledger.Store) {
	ctx := context.Background()

	rate := money.MustParse("2.5")
	credit := row("t1", "op-1", model.CommissionEarned, "12.35", day)
	credit.BookingID = "bk-1"
	credit.CommissionRate = &rate
	credit.Tier = model.Tier2
	credit.CalculationDetails = map[string]string{"base_fare": "494.00"}
	require.NoError(t, l.Append(ctx, credit))
	require.NoError(t, l.Append(ctx, row("t2", "op-1", model.PenaltyDeduction, "-3.50", day.Add(time.Hour))))
	reversed := row("t3", "op-1", model.IncentiveBonus, "100.00", day.Add(2*time.Hour))
	reversed.Status = model.Reversed
	require.NoError(t, l.Append(ctx, reversed))
	require.NoError(t, l.Append(ctx, row("t4", "op-1", model.PayoutTx, "-5.00", day.Add(48*time.Hour))))
	require.NoError(t, l.Append(ctx, row("t5", "op-2", model.CommissionEarned, "7.00", day)))

	dup := row("t6", "op-1", model.CommissionEarned, "1.00", day)
	dup.BookingID = "bk-1"
	assert.ErrorIs(t, l.Append(ctx, dup), ledger.ErrDuplicateTransaction)
	assert.ErrorIs(t, l.Append(ctx, row("t2", "op-1", model.ManualAdjustment, "1.00", day)), ledger.ErrDuplicateTransaction)

	got, err := l.FindByBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "12.35", money.Format(got.Amount))
	require.NotNil(t, got.CommissionRate)
	assert.True(t, got.CommissionRate.Equal(rate))
	assert.Equal(t, model.Tier2, got.Tier)
	assert.Equal(t, "494.00", got.CalculationDetails["base_fare"])
	assert.True(t, got.TransactionDate.Equal(day))

	_, err = l.Get(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	bal, err := l.Balance(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "3.85", money.Format(bal))

	all, err := l.List(ctx, "op-1", ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, []string{all[0].ID, all[1].ID, all[2].ID, all[3].ID})

	window, err := l.List(ctx, "op-1", ledger.Filter{From: day, To: day.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	typed, err := l.List(ctx, "op-1", ledger.Filter{Types: []model.TransactionType{model.PenaltyDeduction, model.PayoutTx}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, "t2", typed[0].ID)

	require.NoError(t, l.MarkReconciled(ctx, "t2"))
	require.NoError(t, l.MarkReconciled(ctx, "t2"))
	got, err = l.Get(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, got.Reconciled)
	assert.ErrorIs(t, l.MarkReconciled(ctx, "missing"), ledger.ErrNotFound)
}

func checkScores(t *testing.T, s scoring.Store) {
	ctx := context.Background()

	older := model.PerformanceScore{
		OperatorID: "op-1", Period: "2025-05", Frequency: model.Monthly,
		VehicleUtilization: 80, DriverManagement: 70, ComplianceSafety: 90, PlatformContribution: 60,
		TotalScore: 76.5, Tier: model.Tier1, QualificationStatus: model.Disqualified,
		MetricSnapshot: model.MetricSet{"customer_satisfaction": 4.2}, CalculatedAt: day,
	}
	newer := older
	newer.Period = "2025-06"
	newer.TotalScore = 85
	newer.Tier = model.Tier2
	newer.QualificationStatus = model.Qualified
	newer.CalculatedAt = day.Add(time.Hour)
	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, older))

	latest, err := s.Latest(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-06", latest.Period)
	assert.Equal(t, model.Tier2, latest.Tier)
	assert.InDelta(t, 4.2, latest.MetricSnapshot["customer_satisfaction"], 1e-9)

	older.TotalScore = 79
	require.NoError(t, s.Save(ctx, older))
	got, err := s.Get(ctx, "op-1", "2025-05", model.Monthly)
	require.NoError(t, err)
	assert.InDelta(t, 79, got.TotalScore, 1e-9)

	final, err := s.Finalize(ctx, "op-1", "2025-05", model.Monthly)
	require.NoError(t, err)
	assert.True(t, final.IsFinal)
	assert.ErrorIs(t, s.Save(ctx, older), scoring.ErrScoreFinalized)

	_, err = s.Latest(ctx, "op-x")
	assert.ErrorIs(t, err, scoring.ErrScoreNotFound)
	_, err = s.Finalize(ctx, "op-x", "2025-05", model.Monthly)
	assert.ErrorIs(t, err, scoring.ErrScoreNotFound)
}

func fee(id, driver string, date time.Time) model.BoundaryFee {
	return model.BoundaryFee{
		ID: id, OperatorID: "op-1", DriverID: driver, FeeDate: date, Model: boundary.ModelFixed,
		BaseFee: money.MustParse("1500.00"), Subsidies: money.MustParse("100.00"),
		Allowances: money.MustParse("50.00"), OtherAdjustments: money.MustParse("-20.00"),
		PerformanceAdjustment: money.MustParse("50.00"), TotalAmount: money.MustParse("1680.00"),
		TripsCompleted: 14, HoursWorked: 10.5, DistanceKm: 120.25, TransactionID: "tx-" + id, CreatedAt: day,
	}
}

func checkBoundaryFees(t *testing.T, s boundary.Store) {
	ctx := context.Background()
	d1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	require.NoError(t, s.Save(ctx, fee("f2", "d-1", d2)))
	require.NoError(t, s.Save(ctx, fee("f1", "d-2", d1)))
	require.NoError(t, s.Save(ctx, fee("f3", "d-1", d1)))
	assert.ErrorIs(t, s.Save(ctx, fee("f4", "d-1", d1)), boundary.ErrDuplicateBoundaryFee)

	got, err := s.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "1680.00", money.Format(got.TotalAmount))
	assert.Equal(t, "-20.00", money.Format(got.OtherAdjustments))
	assert.True(t, got.FeeDate.Equal(d1))
	assert.InDelta(t, 120.25, got.DistanceKm, 1e-9)

	list, err := s.ListByOperator(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"f3", "f1", "f2"}, []string{list[0].ID, list[1].ID, list[2].ID})

	require.NoError(t, s.Delete(ctx, "f3"))
	assert.ErrorIs(t, s.Delete(ctx, "f3"), boundary.ErrNotFound)
	require.NoError(t, s.Save(ctx, fee("f4", "d-1", d1)))
	_, err = s.Get(ctx, "f3")
	assert.ErrorIs(t, err, boundary.ErrNotFound)
}

func checkPayouts(t *testing.T, s payout.Store) {
	ctx := context.Background()

	p := model.Payout{
		ID: "p1", OperatorID: "op-1", PeriodStart: day, PeriodEnd: day.AddDate(0, 1, 0),
		CommissionsAmount: money.MustParse("1000.00"), TaxWithheld: money.MustParse("10.00"),
		PayoutAmount: money.MustParse("990.00"), PaymentMethod: model.BankTransfer,
		Destination: model.Destination{BankName: "BPI", AccountName: "Juan", AccountNumber: "1234567890"},
		Status: model.PayoutPending, RequestedAt: day,
	}
	require.NoError(t, s.Create(ctx, p))
	require.NoError(t, s.Create(ctx, model.Payout{
		ID: "p2", OperatorID: "op-2", PaymentMethod: model.EWallet, Status: model.PayoutPending,
		Destination: model.Destination{Provider: "gcash", MobileNumber: "09171234567"},
		PeriodStart: day, PeriodEnd: day, RequestedAt: day.Add(time.Minute),
	}))

	approvedAt := day.Add(time.Hour)
	p.Status = model.PayoutApproved
	p.ApprovedBy = "finance"
	p.ApprovedAt = &approvedAt
	require.NoError(t, s.Update(ctx, p))
	require.NoError(t, s.Update(ctx, p))
	assert.ErrorIs(t, s.Update(ctx, model.Payout{ID: "p9", Destination: model.Destination{}}), payout.ErrNotFound)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutApproved, got.Status)
	assert.Equal(t, "finance", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(approvedAt))
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, "990.00", money.Format(got.PayoutAmount))
	assert.Equal(t, "1234567890", got.Destination.AccountNumber)

	approved, err := s.ListByStatus(ctx, model.PayoutApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "p1", approved[0].ID)

	mine, err := s.ListByOperator(ctx, "op-2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "gcash", mine[0].Destination.Provider)

	_, err = s.Get(ctx, "p9")
	assert.ErrorIs(t, err, payout.ErrNotFound)

	claimedAt := day.Add(2 * time.Hour)
	claimed, err := s.ClaimForProcessing(ctx, "p1", claimedAt)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutProcessing, claimed.Status)
	require.NotNil(t, claimed.ProcessedAt)
	assert.True(t, claimed.ProcessedAt.Equal(claimedAt))
	assert.Equal(t, "finance", claimed.ApprovedBy)

	_, err = s.ClaimForProcessing(ctx, "p1", claimedAt)
	assert.ErrorIs(t, err, payout.ErrInvalidState)
	_, err = s.ClaimForProcessing(ctx, "p2", claimedAt)
	assert.ErrorIs(t, err, payout.ErrInvalidState)
	_, err = s.ClaimForProcessing(ctx, "p9", claimedAt)
	assert.ErrorIs(t, err, payout.ErrNotFound)
}
