package tier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// CommissionRateConfig is the rate and gating requirements of a tier from
// EffectiveFrom onwards.
type CommissionRateConfig struct {
	Tier                     model.Tier      `json:"tier"`
	RatePercentage           decimal.Decimal `json:"rate_percentage"`
	MinPerformanceScore      float64         `json:"min_performance_score"`
	MinTenureMonths          int             `json:"min_tenure_months"`
	MinPaymentConsistency    float64         `json:"min_payment_consistency"`
	MinUtilizationPercentile float64         `json:"min_utilization_percentile"`
	EffectiveFrom            time.Time       `json:"effective_from"`
	IsActive                 bool            `json:"is_active"`
}

// RateBook resolves the active config of a tier at a point in time.
type RateBook interface {
	Active(ctx context.Context, t model.Tier, at time.Time) (CommissionRateConfig, error)
}

// DefaultRates returns the standard three-tier schedule effective from the zero time.
func DefaultRates() []CommissionRateConfig {
	return []CommissionRateConfig{
		{Tier: model.Tier1, RatePercentage: decimal.NewFromInt(1), IsActive: true},
		{
			Tier: model.Tier2, RatePercentage: decimal.NewFromInt(2),
			MinPerformanceScore: Tier2Threshold, MinTenureMonths: 6,
			MinPaymentConsistency: 0.90, MinUtilizationPercentile: 50, IsActive: true,
		},
		{
			Tier: model.Tier3, RatePercentage: decimal.NewFromInt(3),
			MinPerformanceScore: Tier3Threshold, MinTenureMonths: 12,
			MinPaymentConsistency: 0.95, MinUtilizationPercentile: 75, IsActive: true,
		},
	}
}

var hundred = decimal.NewFromInt(100)

// ValidateRate checks the ranges of a config before it enters a rate book.
func ValidateRate(c CommissionRateConfig) error {
	switch {
	case !c.Tier.Valid():
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, c.Tier)
	case c.RatePercentage.IsNegative() || c.RatePercentage.GreaterThan(hundred):
		return fmt.Errorf("%w: rate %s outside [0,100]", ErrInvalidInput, c.RatePercentage)
	case c.MinPerformanceScore < 0 || c.MinPerformanceScore > 100:
		return fmt.Errorf("%w: min performance score %.2f outside [0,100]", ErrInvalidInput, c.MinPerformanceScore)
	case c.MinTenureMonths < 0:
		return fmt.Errorf("%w: negative min tenure", ErrInvalidInput)
	case c.MinPaymentConsistency < 0 || c.MinPaymentConsistency > 1:
		return fmt.Errorf("%w: min payment consistency outside [0,1]", ErrInvalidInput)
	case c.MinUtilizationPercentile < 0 || c.MinUtilizationPercentile > 100:
		return fmt.Errorf("%w: min utilization percentile outside [0,100]", ErrInvalidInput)
	}
	return nil
}

// StaticRateBook is an in-memory RateBook. Configs can be added over time;
// only active ones already in effect are considered.
type StaticRateBook struct {
	mu      sync.RWMutex
	configs []CommissionRateConfig
}

// NewStaticRateBook creates a rate book holding configs.
func NewStaticRateBook(configs ...CommissionRateConfig) *StaticRateBook {
	b := &StaticRateBook{}
	for _, c := range configs {
		b.Add(c)
	}
	return b
}

// Add registers another config.
func (b *StaticRateBook) Add(c CommissionRateConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, c)
	sort.SliceStable(b.configs, func(i, j int) bool {
		return b.configs[i].EffectiveFrom.Before(b.configs[j].EffectiveFrom)
	})
}

// Active returns the latest active config for t with EffectiveFrom <= at.
func (b *StaticRateBook) Active(ctx context.Context, t model.Tier, at time.Time) (CommissionRateConfig, error) {
	cfg, _, err := b.ActiveUntil(ctx, t, at)
	return cfg, err
}

// ActiveUntil is Active plus the EffectiveFrom of the next config of t, or
// the zero time when none is scheduled.
func (b *StaticRateBook) ActiveUntil(_ context.Context, t model.Tier, at time.Time) (CommissionRateConfig, time.Time, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		found CommissionRateConfig
		until time.Time
		ok    bool
	)
	for _, c := range b.configs {
		if c.Tier != t || !c.IsActive {
			continue
		}
		if c.EffectiveFrom.After(at) {
			until = c.EffectiveFrom
			break
		}
		found, ok = c, true
	}
	if !ok {
		return CommissionRateConfig{}, time.Time{}, fmt.Errorf("%w: %s at %s", ErrNoActiveRate, t, at.Format(time.RFC3339))
	}
	return found, until, nil
}

// WindowedRateBook is a RateBook that also reports when the resolved config
// stops applying.
type WindowedRateBook interface {
	RateBook
	ActiveUntil(ctx context.Context, t model.Tier, at time.Time) (CommissionRateConfig, time.Time, error)
}

// CachedRateBook memoises the resolved config of each tier together with
// the window it applies to, so a change scheduled mid-minute is never
// served stale.
type CachedRateBook struct {
	next  WindowedRateBook
	cache *cache.Cache
}

type cachedRate struct {
	cfg   CommissionRateConfig
	until time.Time
}

func (e cachedRate) covers(at time.Time) bool {
	return !at.Before(e.cfg.EffectiveFrom) && (e.until.IsZero() || at.Before(e.until))
}

// NewCachedRateBook wraps next with a cache whose entries live for ttl.
// A ttl of zero keeps entries until Flush.
func NewCachedRateBook(next WindowedRateBook, ttl time.Duration) *CachedRateBook {
	return &CachedRateBook{next: next, cache: cache.New(ttl, 2*ttl)}
}

// Active serves from cache when the cached window covers at. Errors are not cached.
func (c *CachedRateBook) Active(ctx context.Context, t model.Tier, at time.Time) (CommissionRateConfig, error) {
	key := string(t)
	if v, ok := c.cache.Get(key); ok {
		if e := v.(cachedRate); e.covers(at) {
			return e.cfg, nil
		}
	}
	cfg, until, err := c.next.ActiveUntil(ctx, t, at)
	if err != nil {
		return CommissionRateConfig{}, err
	}
	c.cache.SetDefault(key, cachedRate{cfg: cfg, until: until})
	return cfg, nil
}

// Flush drops every cached entry, e.g. after a rate change.
func (c *CachedRateBook) Flush() {
	c.cache.Flush()
}
