// Package tier decides which commission tier an operator qualifies for.
//
// The evaluator is a pure decision function over a score, operator facts
// and the rate book. It keeps no state between calls; persisting the
// previous tier is up to the caller.
package tier

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/tnvs/internal/domain/model"
)

// Score boundaries of the target tiers.
const (
	Tier2Threshold   = 80.0
	Tier3Threshold   = 90.0
	BorderlineMargin = 1.0
)

const (
	defaultProbationWindow   = 30 * 24 * time.Hour
	defaultViolationLookback = 90 * 24 * time.Hour
)

// Requirement names reported in Qualification.Failed.
const (
	RequirementScore              = "score"
	RequirementTenure             = "tenure"
	RequirementPaymentConsistency = "payment_consistency"
	RequirementUtilization        = "utilization"
)

// Requirements records which gating requirements of the target tier hold.
type Requirements struct {
	Score              bool `json:"score"`
	Tenure             bool `json:"tenure"`
	PaymentConsistency bool `json:"payment_consistency"`
	Utilization        bool `json:"utilization"`
}

func (r Requirements) all() bool {
	return r.Score && r.Tenure && r.PaymentConsistency && r.Utilization
}

func (r Requirements) failed() []string {
	var out []string
	if !r.Score {
		out = append(out, RequirementScore)
	}
	if !r.Tenure {
		out = append(out, RequirementTenure)
	}
	if !r.PaymentConsistency {
		out = append(out, RequirementPaymentConsistency)
	}
	if !r.Utilization {
		out = append(out, RequirementUtilization)
	}
	return out
}

// Input is everything one evaluation looks at.
type Input struct {
	OperatorID            string
	Score                 float64
	TenureMonths          int
	PaymentConsistency    float64
	UtilizationPercentile float64
	Violations            []model.Violation
	// PreviousTier is optional and only drives the Demoted flag.
	PreviousTier model.Tier
}

// InputFromProfile builds an Input from an operator profile and a score.
func InputFromProfile(p model.OperatorProfile, score float64, previous model.Tier) Input {
	return Input{
		OperatorID:            p.ID,
		Score:                 score,
		TenureMonths:          p.TenureMonths,
		PaymentConsistency:    p.PaymentConsistency,
		UtilizationPercentile: p.UtilizationPercentile,
		Violations:            p.Violations,
		PreviousTier:          previous,
	}
}

// Qualification is the decision artifact of one evaluation.
type Qualification struct {
	OperatorID       string                    `json:"operator_id"`
	Score            float64                   `json:"score"`
	TargetTier       model.Tier                `json:"target_tier"`
	Tier             model.Tier                `json:"tier"`
	Status           model.QualificationStatus `json:"status"`
	Requirements     Requirements              `json:"requirements"`
	Failed           []string                  `json:"failed,omitempty"`
	ProbationEndDate *time.Time                `json:"probation_end_date,omitempty"`
	ViolationID      string                    `json:"violation_id,omitempty"`
	Demoted          bool                      `json:"demoted"`
	EvaluatedAt      time.Time                 `json:"evaluated_at"`
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithProbationWindow sets the cooling-off period added to the evaluation time.
func WithProbationWindow(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.probationWindow = d
		}
	}
}

// WithViolationLookback sets how old an unresolved violation may be and still count.
func WithViolationLookback(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.violationLookback = d
		}
	}
}

// Evaluator runs the qualification state machine.
type Evaluator struct {
	rates             RateBook
	now               func() time.Time
	probationWindow   time.Duration
	violationLookback time.Duration
}

// NewEvaluator creates an evaluator reading requirements from rates.
func NewEvaluator(rates RateBook, opts ...Option) *Evaluator {
	e := &Evaluator{
		rates:             rates,
		now:               time.Now,
		probationWindow:   defaultProbationWindow,
		violationLookback: defaultViolationLookback,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TargetFor maps a score to the tier it aims for.
func TargetFor(score float64) model.Tier {
	switch {
	case score >= Tier3Threshold:
		return model.Tier3
	case score >= Tier2Threshold:
		return model.Tier2
	default:
		return model.Tier1
	}
}

// nextBoundary is the score at which the tier above t starts.
func nextBoundary(t model.Tier) (float64, bool) {
	switch t {
	case model.Tier1:
		return Tier2Threshold, true
	case model.Tier2:
		return Tier3Threshold, true
	default:
		return 0, false
	}
}

// Borderline reports whether score sits within the margin below the
// boundary of the tier above t.
func Borderline(score float64, t model.Tier) bool {
	boundary, ok := nextBoundary(t)
	if !ok {
		return false
	}
	return score < boundary && boundary-score <= BorderlineMargin
}

// Evaluate decides the operator's tier and qualification status.
//
// Precedence: a recent unresolved violation puts the operator on probation
// at tier_1; otherwise the target tier is granted when all its requirements
// hold; a borderline score with another failure goes under review at
// tier_1; anything else is disqualified for the target and cascades down to
// the highest tier whose requirements hold.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Qualification, error) {
	if math.IsNaN(in.Score) || in.Score < 0 || in.Score > 100 {
		return Qualification{}, fmt.Errorf("%w: score %v outside [0,100]", ErrInvalidInput, in.Score)
	}
	at := e.now()
	target := TargetFor(in.Score)

	cfg, err := e.rates.Active(ctx, target, at)
	if err != nil {
		return Qualification{}, err
	}
	req := check(cfg, in)

	q := Qualification{
		OperatorID:   in.OperatorID,
		Score:        in.Score,
		TargetTier:   target,
		Requirements: req,
		Failed:       req.failed(),
		EvaluatedAt:  at,
	}

	switch v := e.recentViolation(in.Violations, at); {
	case v != nil:
		end := at.Add(e.probationWindow)
		q.Status = model.Probationary
		q.Tier = model.Tier1
		q.ProbationEndDate = &end
		q.ViolationID = v.ID
	case req.all():
		q.Status = model.Qualified
		q.Tier = target
	case req.Score && Borderline(in.Score, target):
		q.Status = model.UnderReview
		q.Tier = model.Tier1
	default:
		q.Status = model.Disqualified
		q.Tier, err = e.cascade(ctx, target, in, at)
		if err != nil {
			return Qualification{}, err
		}
	}

	q.Demoted = in.PreviousTier.Valid() && q.Tier.Rank() < in.PreviousTier.Rank()
	return q, nil
}

// cascade finds the highest tier below target whose requirements all hold.
func (e *Evaluator) cascade(ctx context.Context, target model.Tier, in Input, at time.Time) (model.Tier, error) {
	for rank := target.Rank() - 1; rank > model.Tier1.Rank(); rank-- {
		lower := model.Tiers[rank-1]
		cfg, err := e.rates.Active(ctx, lower, at)
		if err != nil {
			return model.TierNone, err
		}
		if check(cfg, in).all() {
			return lower, nil
		}
	}
	return model.Tier1, nil
}

func (e *Evaluator) recentViolation(vs []model.Violation, at time.Time) *model.Violation {
	for i := range vs {
		v := &vs[i]
		if v.Resolved {
			continue
		}
		if at.Sub(v.OccurredAt) <= e.violationLookback {
			return v
		}
	}
	return nil
}

func check(cfg CommissionRateConfig, in Input) Requirements {
	return Requirements{
		Score:              in.Score >= cfg.MinPerformanceScore,
		Tenure:             in.TenureMonths >= cfg.MinTenureMonths,
		PaymentConsistency: in.PaymentConsistency >= cfg.MinPaymentConsistency,
		Utilization:        in.UtilizationPercentile >= cfg.MinUtilizationPercentile,
	}
}
