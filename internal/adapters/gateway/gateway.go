// Package gateway holds payout.Gateway implementations.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/okian/tnvs/pkg/logger"
)

// Sentinel error kinds for gateway calls.
var (
	ErrRejected        = errors.New("destination rejected by gateway")
	ErrUnsupportedRail = errors.New("unsupported payment method")
)

// Simulated settles payouts in-process. Destinations listed with Reject
// fail, which lets operators rehearse failure handling.
type Simulated struct {
	mu       sync.RWMutex
	rejected map[string]string
	latency  time.Duration
	log      logger.Logger
}

var _ payout.Gateway = (*Simulated)(nil)

// SimulatedOption configures a Simulated gateway.
type SimulatedOption func(*Simulated)

// WithLatency delays every call by d, honouring cancellation.
func WithLatency(d time.Duration) SimulatedOption {
	return func(s *Simulated) { s.latency = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) SimulatedOption {
	return func(s *Simulated) {
		if l != nil {
			s.log = l.Named("gateway")
		}
	}
}

// NewSimulated creates a gateway that accepts every valid destination.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{rejected: make(map[string]string), log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reject makes payouts to account (an account or mobile number) fail with reason.
func (s *Simulated) Reject(account, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[account] = reason
}

// Execute returns a gateway reference for the payout.
func (s *Simulated) Execute(ctx context.Context, p model.Payout) (string, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	var account, prefix string
	switch p.PaymentMethod {
	case model.BankTransfer:
		account, prefix = p.Destination.AccountNumber, "BNK"
	case model.EWallet:
		account, prefix = p.Destination.MobileNumber, "EWL"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRail, p.PaymentMethod)
	}

	s.mu.RLock()
	reason, bad := s.rejected[account]
	s.mu.RUnlock()
	if bad {
		return "", fmt.Errorf("%w: %s", ErrRejected, reason)
	}

	ref := prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
	s.log.Debug(ctx, "payout settled",
		logger.String("payoutID", p.ID),
		logger.String("operatorID", p.OperatorID),
		logger.Decimal("amount", p.PayoutAmount),
		logger.String("reference", ref))
	return ref, nil
}

// RateLimit is a token bucket rationing payout calls to the gateway.
type RateLimit struct {
	limiter *rate.Limiter
}

var _ payout.Throttle = (*RateLimit)(nil)

// NewRateLimit allows perSecond calls with the given burst. A non-positive
// perSecond disables the limit.
func NewRateLimit(perSecond float64, burst int) *RateLimit {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{limiter: rate.NewLimiter(limit, burst)}
}

// Acquire waits for a token. A cancelled wait returns ctx's error.
func (r *RateLimit) Acquire(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gateway throttle: %w", err)
	}
	return nil
}
