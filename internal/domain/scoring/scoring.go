// Package scoring converts validated metric sets into category scores and a
// 0-100 performance score.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/okian/tnvs/internal/domain/model"
)

const (
	maxScoreValue = 100
	metricsPerCat = 3
	scoreDecimals = 100 // two decimal places
)

// Category point caps. They sum to 100.
var caps = map[model.Category]float64{
	model.VehicleUtilization:   30,
	model.DriverManagement:     25,
	model.ComplianceSafety:     25,
	model.PlatformContribution: 20,
}

// Cap returns the point cap of a category.
func Cap(c model.Category) float64 { return caps[c] }

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithAdjusters appends post-scoring adjusters, applied in order.
func WithAdjusters(adjusters ...Adjuster) Option {
	return func(c *Calculator) {
		for _, a := range adjusters {
			if a != nil {
				c.adjusters = append(c.adjusters, a)
			}
		}
	}
}

// Input is what Score needs for one submission.
type Input struct {
	OperatorID string
	Region     string
	Period     string
	Frequency  model.Frequency
	Metrics    model.MetricSet
}

// Breakdown is the scored output.
type Breakdown struct {
	Categories map[model.Category]float64 `json:"categories"`
	Normalized map[string]float64         `json:"normalized"`
	Total      float64                    `json:"total"`
}

// Scorer computes a breakdown from an input.
type Scorer interface {
	Score(ctx context.Context, in Input) (Breakdown, error)
}

// Calculator implements Scorer. The base formula holds no state; adjusters
// are fixed at construction.
type Calculator struct {
	adjusters []Adjuster
}

// NewCalculator creates a calculator.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate applies the base formula. It assumes set was validated; values
// outside their range are clamped rather than rejected.
func Calculate(set model.MetricSet) Breakdown {
	b := Breakdown{
		Categories: make(map[model.Category]float64, len(caps)),
		Normalized: make(map[string]float64, len(set)),
	}
	sums := make(map[model.Category]float64, len(caps))
	for _, d := range metric.Definitions() {
		n := d.Normalize(set[d.Name])
		b.Normalized[d.Name] = n
		sums[d.Category] += n
	}

	total := 0.0
	for cat, capPoints := range caps {
		score := clamp(capPoints*sums[cat]/metricsPerCat, 0, capPoints)
		score = round2(score)
		b.Categories[cat] = score
		total += score
	}
	b.Total = round2(clamp(total, 0, maxScoreValue))
	return b
}

// Score validates the metrics, applies the base formula, then runs the
// adjusters. The result is always within [0,100].
func (c *Calculator) Score(ctx context.Context, in Input) (Breakdown, error) {
	if err := metric.Validate(in.Metrics); err != nil {
		return Breakdown{}, err
	}
	b := Calculate(in.Metrics)
	actx := AdjustmentContext{OperatorID: in.OperatorID, Region: in.Region, Period: in.Period, Frequency: in.Frequency}
	for _, a := range c.adjusters {
		adjusted, err := a.Adjust(ctx, actx, b)
		if err != nil {
			return Breakdown{}, fmt.Errorf("score adjuster: %w", err)
		}
		b = normalize(adjusted)
	}
	return b, nil
}

// normalize re-applies category caps and the total bound after an adjuster ran.
func normalize(b Breakdown) Breakdown {
	for cat, v := range b.Categories {
		b.Categories[cat] = round2(clamp(v, 0, caps[cat]))
	}
	b.Total = round2(clamp(b.Total, 0, maxScoreValue))
	return b
}

// Apply copies the breakdown onto a PerformanceScore.
func (b Breakdown) Apply(ps *model.PerformanceScore) {
	ps.VehicleUtilization = b.Categories[model.VehicleUtilization]
	ps.DriverManagement = b.Categories[model.DriverManagement]
	ps.ComplianceSafety = b.Categories[model.ComplianceSafety]
	ps.PlatformContribution = b.Categories[model.PlatformContribution]
	ps.TotalScore = b.Total
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*scoreDecimals) / scoreDecimals
}
