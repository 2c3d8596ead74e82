// Package payout moves operator wallet balances out through a payment gateway.
//
// A payout is requested for a ledger period, approved by a person and then
// executed in batches. The wallet is debited only when the gateway confirms.
package payout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/internal/domain/operator"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
	"github.com/okian/tnvs/pkg/validation"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Store persists payouts.
type Store interface {
	Create(ctx context.Context, p model.Payout) error
	// Update replaces a stored payout; ErrNotFound when it does not exist.
	Update(ctx context.Context, p model.Payout) error
	// ClaimForProcessing moves an approved payout to processing in one
	// conditional write. ErrInvalidState means it was no longer approved.
	ClaimForProcessing(ctx context.Context, id string, at time.Time) (model.Payout, error)
	Get(ctx context.Context, id string) (model.Payout, error)
	ListByOperator(ctx context.Context, operatorID string) ([]model.Payout, error)
	ListByStatus(ctx context.Context, status model.PayoutStatus) ([]model.Payout, error)
}

// Gateway delivers money to a destination and returns its reference.
type Gateway interface {
	Execute(ctx context.Context, p model.Payout) (string, error)
}

// Throttle rations gateway calls. Acquire blocks until one call may be
// made or ctx is done.
type Throttle interface {
	Acquire(ctx context.Context) error
}

// Locker serialises work per operator. The returned func releases the lock.
type Locker interface {
	Lock(key string) func()
}

// Request asks for the operator's earnings of a period.
type Request struct {
	OperatorID    string              `json:"operator_id" validate:"required"`
	PeriodStart   time.Time           `json:"period_start" validate:"required"`
	PeriodEnd     time.Time           `json:"period_end" validate:"required"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=bank_transfer e_wallet"`
	Destination   model.Destination   `json:"destination"`
}

type bankDestination struct {
	BankName      string `json:"bank_name" validate:"required"`
	AccountName   string `json:"account_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
}

type walletDestination struct {
	Provider     string `json:"provider" validate:"required"`
	MobileNumber string `json:"mobile_number" validate:"required,min=11,max=13"`
}

// Failure names a payout that ended failed in a batch.
type Failure struct {
	PayoutID string `json:"payout_id"`
	Reason   string `json:"reason"`
}

// BatchResult summarises one Process run.
type BatchResult struct {
	Completed []string  `json:"completed"`
	Failed    []Failure `json:"failed"`
	// Skipped payouts were not attempted and are still approved.
	Skipped []string `json:"skipped"`
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWithholdingRates sets withholding tax percentages per operator type.
func WithWithholdingRates(rates map[model.OperatorType]decimal.Decimal) Option {
	return func(e *Engine) {
		for k, v := range rates {
			e.withholding[k] = v
		}
	}
}

// WithMethodFees sets a flat fee deducted per payment method.
func WithMethodFees(fees map[model.PaymentMethod]decimal.Decimal) Option {
	return func(e *Engine) {
		for k, v := range fees {
			e.methodFees[k] = v
		}
	}
}

// WithConcurrency bounds how many payouts a batch executes at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithThrottle rations gateway calls. The token is taken before a payout
// is claimed, so a payout still waiting when the batch ends stays approved.
func WithThrottle(t Throttle) Option {
	return func(e *Engine) {
		e.throttle = t
	}
}

// WithLocker sets the per-operator locker.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine runs the payout lifecycle.
type Engine struct {
	store       Store
	ledger      *ledger.Ledger
	directory   operator.Directory
	gateway     Gateway
	throttle    Throttle
	locker      Locker
	withholding map[model.OperatorType]decimal.Decimal
	methodFees  map[model.PaymentMethod]decimal.Decimal
	concurrency int
	now         func() time.Time
	log         logger.Logger
}

// NewEngine creates an engine. Withholding defaults to 1% for individuals
// and 2% for corporations; no method fees apply by default.
func NewEngine(store Store, l *ledger.Ledger, dir operator.Directory, gw Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		ledger:    l,
		directory: dir,
		gateway:   gw,
		locker:    &globalLocker{},
		withholding: map[model.OperatorType]decimal.Decimal{
			model.OperatorIndividual: decimal.NewFromInt(1),
			model.OperatorCorporate:  decimal.NewFromInt(2),
		},
		methodFees:  map[model.PaymentMethod]decimal.Decimal{},
		concurrency: defaultConcurrency,
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request computes the payout for a period and stores it as pending.
func (e *Engine) Request(ctx context.Context, req Request) (model.Payout, error) {
	if err := validateRequest(req); err != nil {
		return model.Payout{}, err
	}
	profile, err := e.directory.Get(ctx, req.OperatorID)
	if err != nil {
		return model.Payout{}, err
	}

	unlock := e.locker.Lock(req.OperatorID)
	defer unlock()

	start, end := dayStart(req.PeriodStart), dayEnd(req.PeriodEnd)
	txs, err := e.ledger.List(ctx, req.OperatorID, ledger.Filter{From: start, To: end})
	if err != nil {
		return model.Payout{}, fmt.Errorf("list ledger: %w", err)
	}
	totals := ledger.Summarize(txs)

	gross := totals.Commissions.Add(totals.Bonuses).Add(totals.Adjustments).Sub(totals.Penalties)
	tax := decimal.Zero
	if gross.IsPositive() {
		tax = money.Round(money.Percent(gross, e.withholding[profile.Type]))
	}
	other := money.Round(e.methodFees[req.PaymentMethod])
	amount := money.Round(gross.Sub(tax).Sub(other))
	if !amount.IsPositive() {
		return model.Payout{}, fmt.Errorf("%w: %s to %s computes %s",
			ErrNothingToPay, start.Format(time.DateOnly), end.Format(time.DateOnly), money.Format(amount))
	}

	available, err := e.available(ctx, req.OperatorID, "")
	if err != nil {
		return model.Payout{}, err
	}
	if amount.GreaterThan(available) {
		return model.Payout{}, &InsufficientBalanceError{OperatorID: req.OperatorID, Requested: amount, Available: available}
	}

	p := model.Payout{
		ID:                uuid.NewString(),
		OperatorID:        req.OperatorID,
		PeriodStart:       start,
		PeriodEnd:         end,
		CommissionsAmount: money.Round(totals.Commissions),
		BonusesAmount:     money.Round(totals.Bonuses),
		AdjustmentsAmount: money.Round(totals.Adjustments),
		PenaltiesDeducted: money.Round(totals.Penalties),
		TaxWithheld:       tax,
		OtherDeductions:   other,
		PayoutAmount:      amount,
		PaymentMethod:     req.PaymentMethod,
		Destination:       req.Destination,
		Status:            model.PayoutPending,
		RequestedAt:       e.now(),
	}
	if err := e.store.Create(ctx, p); err != nil {
		return model.Payout{}, fmt.Errorf("create payout: %w", err)
	}

	metrics.RecordPayoutTransition(string(p.Status))
	e.log.Info(ctx, "payout requested",
		logger.String("operatorID", p.OperatorID),
		logger.String("payoutID", p.ID),
		logger.Decimal("amount", p.PayoutAmount),
		logger.Decimal("taxWithheld", p.TaxWithheld))
	return p, nil
}

// available is the wallet balance minus every open payout except skipID.
func (e *Engine) available(ctx context.Context, operatorID, skipID string) (decimal.Decimal, error) {
	balance, err := e.ledger.Balance(ctx, operatorID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet balance: %w", err)
	}
	payouts, err := e.store.ListByOperator(ctx, operatorID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list payouts: %w", err)
	}
	for _, p := range payouts {
		if p.ID != skipID && p.Status.Open() {
			balance = balance.Sub(p.PayoutAmount)
		}
	}
	return balance, nil
}

// Approve moves a pending payout to approved.
func (e *Engine) Approve(ctx context.Context, id, approver string) (model.Payout, error) {
	if strings.TrimSpace(approver) == "" {
		return model.Payout{}, fmt.Errorf("%w: approver is required", ErrInvalidRequest)
	}
	p, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Payout{}, err
	}

	unlock := e.locker.Lock(p.OperatorID)
	defer unlock()

	if p, err = e.store.Get(ctx, id); err != nil {
		return model.Payout{}, err
	}
	if err := transition(&p, model.PayoutApproved); err != nil {
		return model.Payout{}, err
	}
	now := e.now()
	p.ApprovedBy = approver
	p.ApprovedAt = &now
	if err := e.store.Update(ctx, p); err != nil {
		return model.Payout{}, fmt.Errorf("update payout: %w", err)
	}

	metrics.RecordPayoutTransition(string(p.Status))
	e.log.Info(ctx, "payout approved",
		logger.String("operatorID", p.OperatorID),
		logger.String("payoutID", p.ID),
		logger.String("approver", approver))
	return p, nil
}

// Process executes every approved payout. Payouts are isolated: one
// failure never stops the others. Once ctx is done the remaining payouts
// are skipped and stay approved.
func (e *Engine) Process(ctx context.Context) (BatchResult, error) {
	approved, err := e.store.ListByStatus(ctx, model.PayoutApproved)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list approved payouts: %w", err)
	}
	sort.Slice(approved, func(i, j int) bool { return approved[i].RequestedAt.Before(approved[j].RequestedAt) })

	var (
		mu  sync.Mutex
		res = BatchResult{Completed: []string{}, Failed: []Failure{}, Skipped: []string{}}
		g   errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, p := range approved {
		if ctx.Err() != nil {
			res.Skipped = append(res.Skipped, p.ID)
			continue
		}
		g.Go(func() error {
			outcome, reason := e.processOne(ctx, p.ID)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case model.PayoutCompleted:
				res.Completed = append(res.Completed, p.ID)
			case model.PayoutFailed:
				res.Failed = append(res.Failed, Failure{PayoutID: p.ID, Reason: reason})
			default:
				res.Skipped = append(res.Skipped, p.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	e.log.Info(ctx, "payout batch processed",
		logger.Int("completed", len(res.Completed)),
		logger.Int("failed", len(res.Failed)),
		logger.Int("skipped", len(res.Skipped)))
	return res, nil
}

// processOne returns the final status of the payout and, on failure, why.
// An empty status means the payout was left untouched.
func (e *Engine) processOne(ctx context.Context, id string) (model.PayoutStatus, string) {
	p, err := e.store.Get(ctx, id)
	if err != nil || p.Status != model.PayoutApproved {
		return "", ""
	}
	if e.throttle != nil {
		if err := e.throttle.Acquire(ctx); err != nil {
			return "", ""
		}
	}

	unlock := e.locker.Lock(p.OperatorID)
	defer unlock()

	if ctx.Err() != nil {
		return "", ""
	}
	p, err = e.store.ClaimForProcessing(ctx, id, e.now())
	if err != nil {
		if !errors.Is(err, ErrInvalidState) {
			e.log.Error(ctx, "failed to claim payout", logger.String("payoutID", id), logger.Error(err))
		}
		return "", ""
	}
	metrics.RecordPayoutTransition(string(p.Status))

	// From here on the payout is ours; its outcome must be written even if
	// the batch is cancelled.
	wctx := context.WithoutCancel(ctx)

	available, err := e.available(wctx, p.OperatorID, p.ID)
	if err != nil {
		return e.fail(wctx, p, err)
	}
	if p.PayoutAmount.GreaterThan(available) {
		return e.fail(wctx, p, &InsufficientBalanceError{OperatorID: p.OperatorID, Requested: p.PayoutAmount, Available: available})
	}

	start := time.Now()
	ref, err := e.gateway.Execute(ctx, p)
	metrics.RecordPayoutExecutionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return e.fail(wctx, p, &ExecutionError{PayoutID: p.ID, Err: err})
	}

	tx, err := e.ledger.Post(wctx, model.Transaction{
		OperatorID: p.OperatorID,
		Type:       model.PayoutTx,
		Amount:     p.PayoutAmount.Neg(),
		PayoutID:   p.ID,
		CalculationDetails: map[string]string{
			"gateway_reference": ref,
			"payment_method":    string(p.PaymentMethod),
		},
	})
	if err != nil {
		// The gateway already moved the money; the row needs manual reconciliation.
		e.log.Error(wctx, "payout executed but wallet debit failed",
			logger.String("operatorID", p.OperatorID),
			logger.String("payoutID", p.ID),
			logger.String("gatewayReference", ref),
			logger.Error(err))
		p.GatewayReference = ref
		return e.fail(wctx, p, fmt.Errorf("debit wallet: %w", err))
	}

	done := e.now()
	p.GatewayReference = ref
	p.TransactionID = tx.ID
	p.CompletedAt = &done
	_ = transition(&p, model.PayoutCompleted)
	if err := e.store.Update(wctx, p); err != nil {
		e.log.Error(wctx, "failed to mark payout completed", logger.String("payoutID", p.ID), logger.Error(err))
	}
	metrics.RecordPayoutTransition(string(p.Status))
	e.log.Info(wctx, "payout completed",
		logger.String("operatorID", p.OperatorID),
		logger.String("payoutID", p.ID),
		logger.String("gatewayReference", ref),
		logger.Decimal("amount", p.PayoutAmount))
	return model.PayoutCompleted, ""
}

func (e *Engine) fail(ctx context.Context, p model.Payout, cause error) (model.PayoutStatus, string) {
	now := e.now()
	p.FailureReason = cause.Error()
	p.FailedAt = &now
	_ = transition(&p, model.PayoutFailed)
	if err := e.store.Update(ctx, p); err != nil {
		e.log.Error(ctx, "failed to mark payout failed", logger.String("payoutID", p.ID), logger.Error(err))
	}
	metrics.RecordPayoutTransition(string(p.Status))
	metrics.RecordErrorByComponent("payout", "execution")
	e.log.Warn(ctx, "payout failed",
		logger.String("operatorID", p.OperatorID),
		logger.String("payoutID", p.ID),
		logger.Error(cause))
	return model.PayoutFailed, p.FailureReason
}

// Get returns one payout.
func (e *Engine) Get(ctx context.Context, id string) (model.Payout, error) {
	return e.store.Get(ctx, id)
}

// ListByOperator returns the operator's payouts, oldest first.
func (e *Engine) ListByOperator(ctx context.Context, operatorID string) ([]model.Payout, error) {
	return e.store.ListByOperator(ctx, operatorID)
}

func validateRequest(req Request) error {
	violations, err := validation.Struct(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch req.PaymentMethod {
	case model.BankTransfer:
		more, err := validation.Struct(bankDestination{
			BankName: req.Destination.BankName, AccountName: req.Destination.AccountName, AccountNumber: req.Destination.AccountNumber,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		violations = append(violations, more...)
	case model.EWallet:
		more, err := validation.Struct(walletDestination{
			Provider: req.Destination.Provider, MobileNumber: req.Destination.MobileNumber,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		violations = append(violations, more...)
	}
	if !req.PeriodStart.IsZero() && !req.PeriodEnd.IsZero() && req.PeriodEnd.Before(req.PeriodStart) {
		violations = append(violations, validation.Violation{Field: "period_end", Reason: "must not be before period_start"})
	}
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.Field + " " + v.Reason
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return dayStart(t).Add(24*time.Hour - time.Nanosecond)
}

// globalLocker is the fallback when no per-operator locker is injected.
type globalLocker struct{ mu sync.Mutex }

func (l *globalLocker) Lock(string) func() {
	l.mu.Lock()
	return l.mu.Unlock
}
