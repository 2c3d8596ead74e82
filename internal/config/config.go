// Package config defines service configuration and how it is loaded.
//
// Conventions:
//   - New(ctx) returns the defaults; Load layers .env, YAML and env vars on top.
//   - Money values are strings so YAML numbers and env vars parse the same way.
//   - Accessors turn the raw fields into domain types and fail with ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"
)

// TierConfig is one commission rate row.
type TierConfig struct {
	Tier                     string  `koanf:"tier"`
	RatePercentage           string  `koanf:"rate_percentage"`
	MinPerformanceScore      float64 `koanf:"min_performance_score"`
	MinTenureMonths          int     `koanf:"min_tenure_months"`
	MinPaymentConsistency    float64 `koanf:"min_payment_consistency"`
	MinUtilizationPercentile float64 `koanf:"min_utilization_percentile"`
	// EffectiveFrom is YYYY-MM-DD; empty means always.
	EffectiveFrom string `koanf:"effective_from"`
	Disabled      bool   `koanf:"disabled"`
}

// ViolationSeed is a violation attached to a seeded operator.
type ViolationSeed struct {
	ID         string `koanf:"id"`
	Kind       string `koanf:"kind"`
	OccurredAt string `koanf:"occurred_at"`
	Resolved   bool   `koanf:"resolved"`
}

// OperatorSeed preloads the operator directory.
type OperatorSeed struct {
	ID                    string          `koanf:"id"`
	Region                string          `koanf:"region"`
	Type                  string          `koanf:"type"`
	Inactive              bool            `koanf:"inactive"`
	Tier                  string          `koanf:"tier"`
	TenureMonths          int             `koanf:"tenure_months"`
	PaymentConsistency    float64         `koanf:"payment_consistency"`
	UtilizationPercentile float64         `koanf:"utilization_percentile"`
	Violations            []ViolationSeed `koanf:"violations"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the metric submission queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeBackend is memory or redis.
	DedupeBackend string        `koanf:"dedupe_backend"`
	DedupeSize    int           `koanf:"dedupe_size"`
	RedisAddr     string        `koanf:"redis_addr"`
	DedupeTTL     time.Duration `koanf:"dedupe_ttl"`

	// StoreBackend is memory, sqlite, mysql or postgres.
	StoreBackend string `koanf:"store_backend"`
	StoreDSN     string `koanf:"store_dsn"`

	CommissionFloor       string `koanf:"commission_floor"`
	ProbationDays         int    `koanf:"probation_days"`
	ViolationLookbackDays int    `koanf:"violation_lookback_days"`

	PayoutConcurrency   int     `koanf:"payout_concurrency"`
	PayoutRatePerSecond float64 `koanf:"payout_rate_per_second"`
	PayoutBurst         int     `koanf:"payout_burst"`
	// WithholdingRates maps operator type to a percentage.
	WithholdingRates map[string]string `koanf:"withholding_rates"`
	// PayoutMethodFees maps payment method to a flat peso fee.
	PayoutMethodFees map[string]string `koanf:"payout_method_fees"`

	RevenueSharePercentage string  `koanf:"revenue_share_percentage"`
	BoundaryUpperThreshold float64 `koanf:"boundary_upper_threshold"`
	BoundaryReward         string  `koanf:"boundary_reward"`
	BoundaryLowerThreshold float64 `koanf:"boundary_lower_threshold"`
	BoundaryPenalty        string  `koanf:"boundary_penalty"`

	RateCacheTTL time.Duration  `koanf:"rate_cache_ttl"`
	Tiers        []TierConfig   `koanf:"tiers"`
	Operators    []OperatorSeed `koanf:"operators"`
}

// New returns the defaults. Context is accepted first to follow the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 2,
		DedupeBackend:         "memory",
		DedupeSize:            50_000,
		DedupeTTL:             72 * time.Hour,
		StoreBackend:          "memory",
		CommissionFloor:       "5.00",
		ProbationDays:         30,
		ViolationLookbackDays: 90,
		PayoutConcurrency:     4,
		PayoutRatePerSecond:   10,
		PayoutBurst:           5,
		WithholdingRates: map[string]string{
			"individual": "1",
			"corporate":  "2",
		},
		PayoutMethodFees:       map[string]string{},
		RevenueSharePercentage: "30",
		BoundaryUpperThreshold: 85,
		BoundaryReward:         "50.00",
		BoundaryLowerThreshold: 70,
		BoundaryPenalty:        "50.00",
		RateCacheTTL:           5 * time.Minute,
		Tiers: []TierConfig{
			{Tier: "tier_1", RatePercentage: "1"},
			{
				Tier: "tier_2", RatePercentage: "2", MinPerformanceScore: 80,
				MinTenureMonths: 6, MinPaymentConsistency: 0.90, MinUtilizationPercentile: 50,
			},
			{
				Tier: "tier_3", RatePercentage: "3", MinPerformanceScore: 90,
				MinTenureMonths: 12, MinPaymentConsistency: 0.95, MinUtilizationPercentile: 75,
			},
		},
	}
}
