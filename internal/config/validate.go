package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/internal/domain/operator"
	"github.com/okian/tnvs/internal/domain/tier"
	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Validate checks ranges and parses every derived value once so that the
// accessors below cannot fail on a validated Config.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	switch c.LogFormat {
	case "text", "json":
	default:
		add("log_format must be text or json")
	}
	if c.Addr == "" {
		add("addr is required")
	}
	if c.QueueSize <= 0 {
		add("queue_size must be > 0")
	}
	if c.WorkerCount <= 0 {
		add("worker_count must be > 0")
	}
	switch c.DedupeBackend {
	case "memory":
		if c.DedupeSize <= 0 {
			add("dedupe_size must be > 0")
		}
	case "redis":
		if c.RedisAddr == "" {
			add("redis_addr is required when dedupe_backend is redis")
		}
	default:
		add("dedupe_backend must be memory or redis")
	}
	switch c.StoreBackend {
	case "memory":
	case "sqlite", "mysql", "postgres":
		if c.StoreDSN == "" {
			add("store_dsn is required when store_backend is %s", c.StoreBackend)
		}
	default:
		add("store_backend must be memory, sqlite, mysql or postgres")
	}
	if c.ProbationDays < 0 || c.ViolationLookbackDays < 0 {
		add("probation_days and violation_lookback_days must be >= 0")
	}
	if c.PayoutConcurrency <= 0 {
		add("payout_concurrency must be > 0")
	}
	if c.PayoutBurst < 0 {
		add("payout_burst must be >= 0")
	}
	if c.RateCacheTTL < 0 {
		add("rate_cache_ttl must be >= 0")
	}
	if _, err := c.Floor(); err != nil {
		add("%v", err)
	}
	if _, err := c.Withholding(); err != nil {
		add("%v", err)
	}
	if _, err := c.MethodFees(); err != nil {
		add("%v", err)
	}
	if _, err := c.BoundaryPolicy(); err != nil {
		add("%v", err)
	}
	if _, err := c.RateConfigs(); err != nil {
		add("%v", err)
	}
	if _, err := c.OperatorProfiles(); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func nonNegative(name, raw string) (decimal.Decimal, error) {
	d, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be >= 0", name)
	}
	return d, nil
}

func percentage(name, raw string) (decimal.Decimal, error) {
	d, err := nonNegative(name, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s must be <= 100", name)
	}
	return d, nil
}

// Floor returns the minimum commission per booking. Zero disables the floor.
func (c *Config) Floor() (decimal.Decimal, error) {
	return nonNegative("commission_floor", c.CommissionFloor)
}

// ProbationWindow is how long a demoted operator stays on probation.
func (c *Config) ProbationWindow() time.Duration {
	return time.Duration(c.ProbationDays) * day
}

// ViolationLookback is how far back violations block promotion.
func (c *Config) ViolationLookback() time.Duration {
	return time.Duration(c.ViolationLookbackDays) * day
}

// Withholding returns the payout withholding rate per operator type.
func (c *Config) Withholding() (map[model.OperatorType]decimal.Decimal, error) {
	out := make(map[model.OperatorType]decimal.Decimal, len(c.WithholdingRates))
	for k, raw := range c.WithholdingRates {
		t := model.OperatorType(k)
		if t != model.OperatorIndividual && t != model.OperatorCorporate {
			return nil, fmt.Errorf("withholding_rates: unknown operator type %q", k)
		}
		d, err := percentage("withholding_rates."+k, raw)
		if err != nil {
			return nil, err
		}
		out[t] = d
	}
	return out, nil
}

// MethodFees returns the flat fee charged per payment method.
func (c *Config) MethodFees() (map[model.PaymentMethod]decimal.Decimal, error) {
	out := make(map[model.PaymentMethod]decimal.Decimal, len(c.PayoutMethodFees))
	for k, raw := range c.PayoutMethodFees {
		m := model.PaymentMethod(k)
		if m != model.BankTransfer && m != model.EWallet {
			return nil, fmt.Errorf("payout_method_fees: unknown payment method %q", k)
		}
		d, err := nonNegative("payout_method_fees."+k, raw)
		if err != nil {
			return nil, err
		}
		out[m] = d
	}
	return out, nil
}

// BoundaryPolicy returns the boundary fee adjustment policy.
func (c *Config) BoundaryPolicy() (boundary.Policy, error) {
	share, err := percentage("revenue_share_percentage", c.RevenueSharePercentage)
	if err != nil {
		return boundary.Policy{}, err
	}
	reward, err := nonNegative("boundary_reward", c.BoundaryReward)
	if err != nil {
		return boundary.Policy{}, err
	}
	penalty, err := nonNegative("boundary_penalty", c.BoundaryPenalty)
	if err != nil {
		return boundary.Policy{}, err
	}
	if c.BoundaryLowerThreshold > c.BoundaryUpperThreshold {
		return boundary.Policy{}, fmt.Errorf("boundary_lower_threshold must not exceed boundary_upper_threshold")
	}
	return boundary.Policy{
		UpperThreshold:         c.BoundaryUpperThreshold,
		Reward:                 reward,
		LowerThreshold:         c.BoundaryLowerThreshold,
		Penalty:                penalty,
		RevenueSharePercentage: share,
	}, nil
}

// RateConfigs returns the commission rate schedule. Every tier must have at
// least one row.
func (c *Config) RateConfigs() ([]tier.CommissionRateConfig, error) {
	out := make([]tier.CommissionRateConfig, 0, len(c.Tiers))
	seen := map[model.Tier]bool{}
	for i, tc := range c.Tiers {
		t, err := model.ParseTier(tc.Tier)
		if err != nil {
			return nil, fmt.Errorf("tiers[%d]: %w", i, err)
		}
		rate, err := percentage(fmt.Sprintf("tiers[%d].rate_percentage", i), tc.RatePercentage)
		if err != nil {
			return nil, err
		}
		var from time.Time
		if tc.EffectiveFrom != "" {
			from, err = time.Parse(time.DateOnly, tc.EffectiveFrom)
			if err != nil {
				return nil, fmt.Errorf("tiers[%d].effective_from: %w", i, err)
			}
		}
		rc := tier.CommissionRateConfig{
			Tier:                     t,
			RatePercentage:           rate,
			MinPerformanceScore:      tc.MinPerformanceScore,
			MinTenureMonths:          tc.MinTenureMonths,
			MinPaymentConsistency:    tc.MinPaymentConsistency,
			MinUtilizationPercentile: tc.MinUtilizationPercentile,
			EffectiveFrom:            from,
			IsActive:                 !tc.Disabled,
		}
		if err := tier.ValidateRate(rc); err != nil {
			return nil, fmt.Errorf("tiers[%d]: %w", i, err)
		}
		seen[t] = true
		out = append(out, rc)
	}
	for _, t := range model.Tiers {
		if !seen[t] {
			return nil, fmt.Errorf("tiers: no rate configured for %s", t)
		}
	}
	return out, nil
}

// OperatorProfiles returns the seeded operator directory entries.
func (c *Config) OperatorProfiles() ([]model.OperatorProfile, error) {
	out := make([]model.OperatorProfile, 0, len(c.Operators))
	for i, o := range c.Operators {
		p := model.OperatorProfile{
			ID:                    o.ID,
			Region:                o.Region,
			Type:                  model.OperatorType(o.Type),
			Active:                !o.Inactive,
			TenureMonths:          o.TenureMonths,
			PaymentConsistency:    o.PaymentConsistency,
			UtilizationPercentile: o.UtilizationPercentile,
		}
		if p.Type == "" {
			p.Type = model.OperatorIndividual
		}
		if o.Tier != "" {
			t, err := model.ParseTier(o.Tier)
			if err != nil {
				return nil, fmt.Errorf("operators[%d]: %w", i, err)
			}
			p.Tier = t
		}
		for j, v := range o.Violations {
			at, err := time.Parse(time.RFC3339, v.OccurredAt)
			if err != nil {
				return nil, fmt.Errorf("operators[%d].violations[%d].occurred_at: %w", i, j, err)
			}
			p.Violations = append(p.Violations, model.Violation{ID: v.ID, Kind: v.Kind, OccurredAt: at, Resolved: v.Resolved})
		}
		if err := operator.Validate(p); err != nil {
			return nil, fmt.Errorf("operators[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
