package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tnvs/internal/adapters/mq/queue"
	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/scoring"
	"github.com/okian/tnvs/internal/domain/tier"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
)

// ScoreResult is what scoring one submission produced.
type ScoreResult struct {
	Score         model.PerformanceScore `json:"score"`
	Qualification tier.Qualification     `json:"qualification"`
	Normalized    map[string]float64     `json:"normalized"`
	Quality       float64                `json:"quality"`
}

// checkSubmission rejects a submission before it is queued or scored.
func checkSubmission(sub model.MetricSubmission) error {
	if strings.TrimSpace(sub.OperatorID) == "" {
		return fmt.Errorf("%w: operator id is required", ErrInvalidSubmission)
	}
	if _, err := model.ParseFrequency(string(sub.Frequency)); err != nil {
		return err
	}
	if err := model.ValidatePeriod(sub.Frequency, sub.Period); err != nil {
		return err
	}
	if err := metric.Validate(sub.Metrics); err != nil {
		recordInvalid(err)
		return err
	}
	return nil
}

func recordInvalid(err error) {
	var invalid *metric.InvalidMetricsError
	if errors.As(err, &invalid) {
		for _, name := range invalid.FieldNames() {
			metrics.RecordValidationFailure(name)
		}
	}
}

// SubmitMetrics validates a submission and queues it for scoring. It returns
// the submission id; queue.ErrQueueFull when the queue cannot take it.
func (s *Service) SubmitMetrics(ctx context.Context, sub model.MetricSubmission) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if err := checkSubmission(sub); err != nil {
		return "", err
	}
	if _, err := s.directory.Get(ctx, sub.OperatorID); err != nil {
		return "", err
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.NewString()
	}
	sub.ReceivedAt = s.now()
	sub.Metrics = sub.Metrics.Clone()

	metrics.RecordMetricSubmission(string(sub.Frequency))
	if !s.queue.Enqueue(ctx, sub) {
		return "", queue.ErrQueueFull
	}
	s.logger.Debug(ctx, "metric submission queued",
		logger.String("submissionID", sub.SubmissionID),
		logger.String("operatorID", sub.OperatorID),
		logger.String("period", sub.Period))
	return sub.SubmissionID, nil
}

// ScoreMetrics scores a submission synchronously and stores the result.
func (s *Service) ScoreMetrics(ctx context.Context, sub model.MetricSubmission) (ScoreResult, error) {
	if err := s.ready(); err != nil {
		return ScoreResult{}, err
	}
	if err := checkSubmission(sub); err != nil {
		return ScoreResult{}, err
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.NewString()
	}
	sub.ReceivedAt = s.now()
	metrics.RecordMetricSubmission(string(sub.Frequency))
	return s.score(ctx, sub)
}

// processSubmission is the worker pool's Processor.
func (s *Service) processSubmission(ctx context.Context, sub queue.Submission) error { //nolint:gocritic // hugeParam
	_, err := s.score(ctx, sub)
	return err
}

// score runs validate, score, evaluate and save for one submission.
func (s *Service) score(ctx context.Context, sub model.MetricSubmission) (ScoreResult, error) {
	profile, err := s.directory.Get(ctx, sub.OperatorID)
	if err != nil {
		return ScoreResult{}, err
	}

	start := time.Now()
	b, err := s.scorer.Score(ctx, scoring.Input{
		OperatorID: sub.OperatorID,
		Region:     profile.Region,
		Period:     sub.Period,
		Frequency:  sub.Frequency,
		Metrics:    sub.Metrics,
	})
	if err != nil {
		recordInvalid(err)
		return ScoreResult{}, err
	}
	metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)

	previous := profile.Tier
	if latest, err := s.stores.Scores.Latest(ctx, sub.OperatorID); err == nil {
		previous = latest.Tier
	} else if !errors.Is(err, scoring.ErrScoreNotFound) {
		return ScoreResult{}, fmt.Errorf("latest score: %w", err)
	}

	q, err := s.evaluator.Evaluate(ctx, tier.InputFromProfile(profile, b.Total, previous))
	if err != nil {
		return ScoreResult{}, fmt.Errorf("evaluate tier: %w", err)
	}

	ps := model.PerformanceScore{
		OperatorID:          sub.OperatorID,
		Period:              sub.Period,
		Frequency:           sub.Frequency,
		Tier:                q.Tier,
		QualificationStatus: q.Status,
		MetricSnapshot:      sub.Metrics.Clone(),
		CalculatedAt:        s.now(),
	}
	b.Apply(&ps)
	if err := s.stores.Scores.Save(ctx, ps); err != nil {
		return ScoreResult{}, err
	}

	metrics.RecordTierOutcome(string(q.Status), string(q.Tier))
	s.logger.Info(ctx, "operator scored",
		logger.String("operatorID", ps.OperatorID),
		logger.String("period", ps.Period),
		logger.Float64("total", ps.TotalScore),
		logger.String("tier", string(ps.Tier)),
		logger.String("status", string(ps.QualificationStatus)),
		logger.Bool("demoted", q.Demoted))

	return ScoreResult{
		Score:         ps,
		Qualification: q,
		Normalized:    b.Normalized,
		Quality:       metric.Quality(sub.Metrics),
	}, nil
}

// Score returns the stored score of one period.
func (s *Service) Score(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error) {
	if err := s.ready(); err != nil {
		return model.PerformanceScore{}, err
	}
	return s.stores.Scores.Get(ctx, operatorID, period, f)
}

// LatestScore returns the most recently calculated score of an operator.
func (s *Service) LatestScore(ctx context.Context, operatorID string) (model.PerformanceScore, error) {
	if err := s.ready(); err != nil {
		return model.PerformanceScore{}, err
	}
	return s.stores.Scores.Latest(ctx, operatorID)
}

// FinalizeScore freezes a score; later submissions for the period fail.
func (s *Service) FinalizeScore(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error) {
	if err := s.ready(); err != nil {
		return model.PerformanceScore{}, err
	}
	if err := model.ValidatePeriod(f, period); err != nil {
		return model.PerformanceScore{}, err
	}
	ps, err := s.stores.Scores.Finalize(ctx, operatorID, period, f)
	if err != nil {
		return model.PerformanceScore{}, err
	}
	s.logger.Info(ctx, "score finalized",
		logger.String("operatorID", operatorID),
		logger.String("period", period),
		logger.String("frequency", string(f)))
	return ps, nil
}

// Tier re-evaluates the operator's current qualification from the latest
// score and the directory profile.
func (s *Service) Tier(ctx context.Context, operatorID string) (tier.Qualification, error) {
	if err := s.ready(); err != nil {
		return tier.Qualification{}, err
	}
	profile, err := s.directory.Get(ctx, operatorID)
	if err != nil {
		return tier.Qualification{}, err
	}
	latest, err := s.stores.Scores.Latest(ctx, operatorID)
	if err != nil {
		return tier.Qualification{}, err
	}
	return s.evaluator.Evaluate(ctx, tier.InputFromProfile(profile, latest.TotalScore, latest.Tier))
}

// PutProfile creates or replaces an operator profile in the directory.
func (s *Service) PutProfile(ctx context.Context, p model.OperatorProfile) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.directory.Put(ctx, p); err != nil {
		return err
	}
	s.logger.Info(ctx, "operator profile stored",
		logger.String("operatorID", p.ID),
		logger.String("tier", string(p.Tier)),
		logger.Bool("active", p.Active))
	return nil
}

// Profile returns an operator profile.
func (s *Service) Profile(ctx context.Context, operatorID string) (model.OperatorProfile, error) {
	if err := s.ready(); err != nil {
		return model.OperatorProfile{}, err
	}
	return s.directory.Get(ctx, operatorID)
}
