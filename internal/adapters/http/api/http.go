// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/internal/adapters/mq/queue"
	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/commission"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/operator"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/okian/tnvs/internal/domain/scoring"
	"github.com/okian/tnvs/internal/domain/tier"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/shopspring/decimal"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Scoring
	SubmitMetrics(ctx context.Context, sub model.MetricSubmission) (string, error)
	ScoreMetrics(ctx context.Context, sub model.MetricSubmission) (service.ScoreResult, error)
	Score(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error)
	LatestScore(ctx context.Context, operatorID string) (model.PerformanceScore, error)
	FinalizeScore(ctx context.Context, operatorID, period string, f model.Frequency) (model.PerformanceScore, error)
	Tier(ctx context.Context, operatorID string) (tier.Qualification, error)
	PutProfile(ctx context.Context, p model.OperatorProfile) error
	Profile(ctx context.Context, operatorID string) (model.OperatorProfile, error)

	// Wallet
	CreditBooking(ctx context.Context, ev model.BookingEvent) (model.Transaction, bool, error)
	RecordBoundaryFee(ctx context.Context, sub boundary.Submission) (model.BoundaryFee, error)
	BoundaryFees(ctx context.Context, operatorID string) ([]model.BoundaryFee, error)
	PostAdjustment(ctx context.Context, operatorID string, t model.TransactionType, amount decimal.Decimal, reason string) (model.Transaction, error)
	Wallet(ctx context.Context, operatorID string) (service.Wallet, error)
	Transactions(ctx context.Context, operatorID string, f ledger.Filter) ([]model.Transaction, error)
	Reconcile(ctx context.Context, id string) (model.Transaction, error)

	// Payouts
	RequestPayout(ctx context.Context, req payout.Request) (model.Payout, error)
	ApprovePayout(ctx context.Context, id, approver string) (model.Payout, error)
	ProcessPayouts(ctx context.Context) (payout.BatchResult, error)
	GetPayout(ctx context.Context, id string) (model.Payout, error)
	ListPayouts(ctx context.Context, operatorID string) ([]model.Payout, error)

	// Rates
	AddRate(ctx context.Context, c tier.CommissionRateConfig) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	logger         logger.Logger
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	scoresHandler  *ScoresHandler
	walletHandler  *WalletHandler
	payoutsHandler *PayoutsHandler
	ratesHandler   *RatesHandler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the recovery middleware.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		logger:         logger.Nop(),
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		scoresHandler:  NewScoresHandler(deps),
		walletHandler:  NewWalletHandler(deps),
		payoutsHandler: NewPayoutsHandler(deps),
		ratesHandler:   NewRatesHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches middleware and every route to r.
func (s *Server) Register(_ context.Context, r *gin.Engine) {
	r.Use(Recovery(s.logger), MetricsMiddleware())

	r.GET("/healthz", s.healthHandler.HandleHealth)
	r.GET("/metrics", s.healthHandler.HandleMetrics)
	r.GET("/stats", s.statsHandler.HandleStats)

	v1 := r.Group("/v1")
	{
		ops := v1.Group("/operators/:id")
		ops.POST("/metrics", s.scoresHandler.HandleSubmitMetrics)
		ops.GET("/score", s.scoresHandler.HandleGetScore)
		ops.POST("/scores/finalize", s.scoresHandler.HandleFinalize)
		ops.GET("/tier", s.scoresHandler.HandleGetTier)
		ops.PUT("/profile", s.scoresHandler.HandlePutProfile)
		ops.GET("/profile", s.scoresHandler.HandleGetProfile)
		ops.POST("/adjustments", s.walletHandler.HandleAdjustment)
		ops.GET("/wallet", s.walletHandler.HandleGetWallet)
		ops.GET("/transactions", s.walletHandler.HandleListTransactions)
		ops.GET("/boundary-fees", s.walletHandler.HandleListBoundaryFees)
		ops.GET("/payouts", s.payoutsHandler.HandleListPayouts)

		v1.POST("/bookings/completed", s.walletHandler.HandleBookingCompleted)
		v1.POST("/boundary-fees", s.walletHandler.HandleBoundaryFee)
		v1.POST("/transactions/:id/reconcile", s.walletHandler.HandleReconcile)

		v1.POST("/payouts", s.payoutsHandler.HandleRequest)
		v1.POST("/payouts/process", s.payoutsHandler.HandleProcess)
		v1.POST("/payouts/:id/approve", s.payoutsHandler.HandleApprove)
		v1.GET("/payouts/:id", s.payoutsHandler.HandleGet)

		v1.POST("/rates", s.ratesHandler.HandleAddRate)
	}
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fields  any    `json:"fields,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps err to a status and writes it.
func writeDomainError(c *gin.Context, err error) {
	resp := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError

	var invalidMetrics *metric.InvalidMetricsError
	var invalidFee *boundary.InvalidDataError

	switch {
	case errors.As(err, &invalidMetrics):
		status, resp.Code, resp.Fields = http.StatusBadRequest, "invalid_metrics", invalidMetrics.Fields
	case errors.As(err, &invalidFee):
		status, resp.Code, resp.Fields = http.StatusBadRequest, "invalid_boundary_fee", invalidFee.Fields
	case errors.Is(err, metric.ErrInvalidMetrics),
		errors.Is(err, boundary.ErrInvalidBoundaryFeeData):
		status, resp.Code = http.StatusBadRequest, "invalid_data"
	case errors.Is(err, model.ErrInvalidPeriod),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, commission.ErrInvalidBooking),
		errors.Is(err, ledger.ErrInvalidAdjustment),
		errors.Is(err, ledger.ErrInvalidTransaction),
		errors.Is(err, payout.ErrInvalidRequest),
		errors.Is(err, operator.ErrInvalidProfile),
		errors.Is(err, tier.ErrInvalidInput),
		errors.Is(err, ErrBadRequest):
		status, resp.Code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, operator.ErrUnknownOperator),
		errors.Is(err, scoring.ErrScoreNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, payout.ErrNotFound),
		errors.Is(err, boundary.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, boundary.ErrDuplicateBoundaryFee),
		errors.Is(err, scoring.ErrScoreFinalized),
		errors.Is(err, payout.ErrInvalidState),
		errors.Is(err, ledger.ErrDuplicateTransaction),
		errors.Is(err, commission.ErrBookingConflict):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(err, commission.ErrOperatorNotEligible),
		errors.Is(err, payout.ErrInsufficientBalance),
		errors.Is(err, payout.ErrNothingToPay):
		status, resp.Code = http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, ErrBackpressure):
		status, resp.Code = http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		status, resp.Code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, payout.ErrPayoutExecution):
		status, resp.Code = http.StatusBadGateway, "payout_failed"
	case errors.Is(err, tier.ErrNoActiveRate):
		status, resp.Code = http.StatusInternalServerError, "no_active_rate"
	default:
		resp.Code, resp.Message = "internal", "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}
