package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/scoring"
)

const scoreColumns = `operator_id, period, frequency, vehicle_utilization, driver_management,
	compliance_safety, platform_contribution, total_score, tier, qualification_status,
	metric_snapshot, calculated_at, is_final`

// ScoreStore implements scoring.Store on the performance_scores table.
type ScoreStore struct {
	s *Store
}

var _ scoring.Store = &ScoreStore{} // Compile-time check

// Save inserts or replaces the score of (operator, period, frequency).
func (st *ScoreStore) Save(ctx context.Context, sc model.PerformanceScore) error {
	var snapshot any
	if sc.MetricSnapshot != nil {
		b, err := json.Marshal(sc.MetricSnapshot)
		if err != nil {
			return fmt.Errorf("encode metric snapshot: %w", err)
		}
		snapshot = string(b)
	}

	b := st.s.backend
	dbtx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin score save: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	var final bool
	err = dbtx.QueryRowContext(ctx, b.rebind(
		`SELECT is_final FROM performance_scores WHERE operator_id = ? AND period = ? AND frequency = ?`),
		sc.OperatorID, sc.Period, string(sc.Frequency)).Scan(&final)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = dbtx.ExecContext(ctx, b.rebind(
			`INSERT INTO performance_scores (`+scoreColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			sc.OperatorID, sc.Period, string(sc.Frequency),
			sc.VehicleUtilization, sc.DriverManagement, sc.ComplianceSafety, sc.PlatformContribution,
			sc.TotalScore, string(sc.Tier), string(sc.QualificationStatus),
			snapshot, formatTime(sc.CalculatedAt), sc.IsFinal)
	case err != nil:
		return fmt.Errorf("read score: %w", err)
	case final:
		return fmt.Errorf("%w: %s %s %s", scoring.ErrScoreFinalized, sc.OperatorID, sc.Frequency, sc.Period)
	default:
		_, err = dbtx.ExecContext(ctx, b.rebind(
			`UPDATE performance_scores SET vehicle_utilization = ?, driver_management = ?,
			compliance_safety = ?, platform_contribution = ?, total_score = ?, tier = ?,
			qualification_status = ?, metric_snapshot = ?, calculated_at = ?, is_final = ?
			WHERE operator_id = ? AND period = ? AND frequency = ?`),
			sc.VehicleUtilization, sc.DriverManagement, sc.ComplianceSafety, sc.PlatformContribution,
			sc.TotalScore, string(sc.Tier), string(sc.QualificationStatus),
			snapshot, formatTime(sc.CalculatedAt), sc.IsFinal,
			sc.OperatorID, sc.Period, string(sc.Frequency))
	}
	if err != nil {
		return fmt.Errorf("write score: %w", err)
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit score: %w", err)
	}
	return nil
}

func (st *ScoreStore) Get(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error) {
	row := st.s.queryRow(ctx,
		`SELECT `+scoreColumns+` FROM performance_scores WHERE operator_id = ? AND period = ? AND frequency = ?`,
		operatorID, period, string(f))
	sc, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PerformanceScore{}, fmt.Errorf("%w: %s %s %s", scoring.ErrScoreNotFound, operatorID, f, period)
	}
	return sc, err
}

func (st *ScoreStore) Latest(ctx context.Context, operatorID string) (model.PerformanceScore, error) {
	row := st.s.queryRow(ctx,
		`SELECT `+scoreColumns+` FROM performance_scores WHERE operator_id = ?
		ORDER BY calculated_at DESC, seq DESC LIMIT 1`, operatorID)
	sc, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PerformanceScore{}, fmt.Errorf("%w: %s", scoring.ErrScoreNotFound, operatorID)
	}
	return sc, err
}

func (st *ScoreStore) Finalize(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error) {
	if _, err := st.s.exec(ctx,
		`UPDATE performance_scores SET is_final = ? WHERE operator_id = ? AND period = ? AND frequency = ?`,
		true, operatorID, period, string(f)); err != nil {
		return model.PerformanceScore{}, fmt.Errorf("finalize score: %w", err)
	}
	return st.Get(ctx, operatorID, period, f)
}

func scanScore(r rowScanner) (model.PerformanceScore, error) {
	var (
		sc                     model.PerformanceScore
		freq, tier, status, at string
		snapshot               sql.NullString
	)
	err := r.Scan(&sc.OperatorID, &sc.Period, &freq,
		&sc.VehicleUtilization, &sc.DriverManagement, &sc.ComplianceSafety, &sc.PlatformContribution,
		&sc.TotalScore, &tier, &status, &snapshot, &at, &sc.IsFinal)
	if err != nil {
		return model.PerformanceScore{}, err
	}
	sc.Frequency = model.Frequency(freq)
	sc.Tier = model.Tier(tier)
	sc.QualificationStatus = model.QualificationStatus(status)
	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &sc.MetricSnapshot); err != nil {
			return model.PerformanceScore{}, fmt.Errorf("decode metric snapshot: %w", err)
		}
	}
	if sc.CalculatedAt, err = parseTime(at); err != nil {
		return model.PerformanceScore{}, err
	}
	return sc, nil
}
