// Package commission turns completed bookings into commission ledger credits.
package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/tnvs/internal/domain/dedupe"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/internal/domain/operator"
	"github.com/okian/tnvs/internal/domain/scoring"
	"github.com/okian/tnvs/internal/domain/tier"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
	"github.com/shopspring/decimal"
)

// DefaultMinimumCommission is the floor applied when none is configured.
var DefaultMinimumCommission = money.MustParse("5.00")

// Result is the outcome of one commission calculation.
type Result struct {
	Commission   decimal.Decimal // fare × rate / 100, unrounded
	Bonus        decimal.Decimal // fare × bonus / 100, unrounded
	Computed     decimal.Decimal // rounded sum before the floor
	Amount       decimal.Decimal // credited amount
	FloorApplied bool
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithMinimumCommission sets the floor. Zero disables it.
func WithMinimumCommission(floor decimal.Decimal) Option {
	return func(c *Calculator) {
		if !floor.IsNegative() {
			c.floor = floor
		}
	}
}

// Calculator computes commission amounts. It is pure.
type Calculator struct {
	floor decimal.Decimal
}

// NewCalculator creates a calculator with the default floor unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{floor: DefaultMinimumCommission}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Floor returns the configured minimum commission.
func (c *Calculator) Floor() decimal.Decimal { return c.floor }

// Calculate applies rate and bonus percentages to fare. The two parts are
// summed before rounding; the floor is applied last.
func (c *Calculator) Calculate(rate, fare, bonus decimal.Decimal) Result {
	r := Result{
		Commission: money.Percent(fare, rate),
		Bonus:      money.Percent(fare, bonus),
	}
	r.Computed = money.Round(r.Commission.Add(r.Bonus))
	r.Amount = r.Computed
	if c.floor.IsPositive() && r.Computed.LessThan(c.floor) {
		r.Amount = c.floor
		r.FloorApplied = true
	}
	return r
}

// ScoreSource returns the latest performance score of an operator, or
// scoring.ErrScoreNotFound.
type ScoreSource interface {
	Latest(ctx context.Context, operatorID string) (model.PerformanceScore, error)
}

// ServiceOption applies a configuration option to the Service.
type ServiceOption func(*Service)

// WithDeduper adds a fast-path replay filter in front of the ledger.
func WithDeduper(d dedupe.Deduper) ServiceOption {
	return func(s *Service) { s.dedupe = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service credits commissions for completed bookings. Callers hold the
// operator lock around Credit.
type Service struct {
	calc      *Calculator
	ledger    *ledger.Ledger
	rates     tier.RateBook
	directory operator.Directory
	scores    ScoreSource
	dedupe    dedupe.Deduper
	now       func() time.Time
	log       logger.Logger
}

// NewService wires a commission service.
func NewService(calc *Calculator, l *ledger.Ledger, rates tier.RateBook, dir operator.Directory, scores ScoreSource, opts ...ServiceOption) *Service {
	s := &Service{
		calc:      calc,
		ledger:    l,
		rates:     rates,
		directory: dir,
		scores:    scores,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credit records the commission for a booking. A booking that was already
// credited returns the original transaction with duplicate set.
func (s *Service) Credit(ctx context.Context, ev model.BookingEvent) (tx model.Transaction, duplicate bool, err error) {
	if err := validateBooking(ev); err != nil {
		return model.Transaction{}, false, err
	}

	if s.dedupe != nil && s.dedupe.SeenAndRecord(ctx, ev.BookingID) {
		prior, err := s.ledger.FindByBooking(ctx, ev.BookingID)
		if err == nil {
			return s.replay(ctx, ev, prior)
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return model.Transaction{}, false, err
		}
		// Seen but never written: fall through and let the ledger decide.
	}

	tx, err = s.credit(ctx, ev)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		prior, findErr := s.ledger.FindByBooking(ctx, ev.BookingID)
		if findErr != nil {
			return model.Transaction{}, false, findErr
		}
		return s.replay(ctx, ev, prior)
	}
	if err != nil {
		if s.dedupe != nil {
			s.dedupe.Unrecord(ctx, ev.BookingID)
		}
		return model.Transaction{}, false, err
	}
	return tx, false, nil
}

func (s *Service) credit(ctx context.Context, ev model.BookingEvent) (model.Transaction, error) {
	at := ev.CompletedAt
	if at.IsZero() {
		at = s.now()
	}

	t, err := s.resolveTier(ctx, ev.OperatorID)
	if err != nil {
		return model.Transaction{}, err
	}
	cfg, err := s.rates.Active(ctx, t, at)
	if err != nil {
		if errors.Is(err, tier.ErrNoActiveRate) {
			return model.Transaction{}, fmt.Errorf("%w: %v", ErrOperatorNotEligible, err)
		}
		return model.Transaction{}, err
	}

	bonus := ev.BonusPercentage
	res := s.calc.Calculate(cfg.RatePercentage, ev.BaseFare, bonus)
	rate := cfg.RatePercentage

	tx, err := s.ledger.Post(ctx, model.Transaction{
		OperatorID:      ev.OperatorID,
		Type:            model.CommissionEarned,
		Amount:          res.Amount,
		BookingID:       ev.BookingID,
		CommissionRate:  &rate,
		Tier:            t,
		TransactionDate: at,
		CalculationDetails: map[string]string{
			"base_fare":        money.Format(ev.BaseFare),
			"rate_percentage":  rate.String(),
			"bonus_percentage": bonus.String(),
			"computed":         money.Format(res.Computed),
			"floor":            money.Format(s.calc.Floor()),
			"floor_applied":    fmt.Sprintf("%t", res.FloorApplied),
		},
	})
	if err != nil {
		return model.Transaction{}, err
	}

	metrics.RecordCommissionCredited(string(t), res.Amount.InexactFloat64())
	s.log.Info(ctx, "commission credited",
		logger.String("operatorID", ev.OperatorID),
		logger.String("bookingID", ev.BookingID),
		logger.String("tier", string(t)),
		logger.Decimal("amount", res.Amount),
		logger.Bool("floorApplied", res.FloorApplied))
	return tx, nil
}

// replay answers a booking id that is already on the ledger. Only the same
// operator and fare count as a replay; anything else is a conflict.
func (s *Service) replay(ctx context.Context, ev model.BookingEvent, prior model.Transaction) (model.Transaction, bool, error) {
	if prior.OperatorID != ev.OperatorID {
		return model.Transaction{}, false, fmt.Errorf("%w: booking %s belongs to operator %s",
			ErrBookingConflict, ev.BookingID, prior.OperatorID)
	}
	if fare, ok := prior.CalculationDetails["base_fare"]; ok && fare != money.Format(ev.BaseFare) {
		return model.Transaction{}, false, fmt.Errorf("%w: booking %s was credited for fare %s, not %s",
			ErrBookingConflict, ev.BookingID, fare, money.Format(ev.BaseFare))
	}
	s.duplicate(ctx, prior)
	return prior, true, nil
}

func (s *Service) duplicate(ctx context.Context, prior model.Transaction) {
	metrics.RecordDuplicateBooking()
	s.log.Debug(ctx, "duplicate booking ignored",
		logger.String("operatorID", prior.OperatorID),
		logger.String("bookingID", prior.BookingID),
		logger.String("transactionID", prior.ID))
}

// resolveTier prefers the latest score's tier and falls back to the tier
// stored on the operator record.
func (s *Service) resolveTier(ctx context.Context, operatorID string) (model.Tier, error) {
	p, err := s.directory.Get(ctx, operatorID)
	if err != nil {
		if errors.Is(err, operator.ErrUnknownOperator) {
			return model.TierNone, fmt.Errorf("%w: %v", ErrOperatorNotEligible, err)
		}
		return model.TierNone, err
	}
	if !p.Active {
		return model.TierNone, fmt.Errorf("%w: operator %s is inactive", ErrOperatorNotEligible, operatorID)
	}

	latest, err := s.scores.Latest(ctx, operatorID)
	switch {
	case err == nil && latest.Tier.Valid():
		return latest.Tier, nil
	case err != nil && !errors.Is(err, scoring.ErrScoreNotFound):
		return model.TierNone, err
	}
	if p.Tier.Valid() {
		return p.Tier, nil
	}
	return model.TierNone, fmt.Errorf("%w: operator %s has no tier", ErrOperatorNotEligible, operatorID)
}

func validateBooking(ev model.BookingEvent) error {
	switch {
	case strings.TrimSpace(ev.BookingID) == "":
		return fmt.Errorf("%w: booking id is required", ErrInvalidBooking)
	case strings.TrimSpace(ev.OperatorID) == "":
		return fmt.Errorf("%w: operator id is required", ErrInvalidBooking)
	case !ev.BaseFare.IsPositive():
		return fmt.Errorf("%w: base fare must be positive", ErrInvalidBooking)
	case ev.BonusPercentage.IsNegative():
		return fmt.Errorf("%w: bonus percentage must not be negative", ErrInvalidBooking)
	}
	return nil
}
