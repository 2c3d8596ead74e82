package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/tier"
	"github.com/shopspring/decimal"
)

type rateRequest struct {
	Tier                     string          `json:"tier" binding:"required"`
	RatePercentage           decimal.Decimal `json:"rate_percentage"`
	MinPerformanceScore      float64         `json:"min_performance_score"`
	MinTenureMonths          int             `json:"min_tenure_months"`
	MinPaymentConsistency    float64         `json:"min_payment_consistency"`
	MinUtilizationPercentile float64         `json:"min_utilization_percentile"`
	EffectiveFrom            string          `json:"effective_from" binding:"required"`
	Inactive                 bool            `json:"inactive"`
}

// RatesHandler manages the commission rate schedule.
type RatesHandler struct {
	deps Dependencies
}

// NewRatesHandler creates a new rates handler.
func NewRatesHandler(deps Dependencies) *RatesHandler {
	return &RatesHandler{deps: deps}
}

// HandleAddRate handles POST /v1/rates.
func (h *RatesHandler) HandleAddRate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDomainError(c, WrapKind("add rate", ErrBadRequest, err))
		return
	}
	t, err := model.ParseTier(req.Tier)
	if err != nil {
		writeDomainError(c, WrapKind("add rate", ErrBadRequest, err))
		return
	}
	from, err := parseDate("effective_from", req.EffectiveFrom, false)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	rc := tier.CommissionRateConfig{
		Tier:                     t,
		RatePercentage:           req.RatePercentage,
		MinPerformanceScore:      req.MinPerformanceScore,
		MinTenureMonths:          req.MinTenureMonths,
		MinPaymentConsistency:    req.MinPaymentConsistency,
		MinUtilizationPercentile: req.MinUtilizationPercentile,
		EffectiveFrom:            from,
		IsActive:                 !req.Inactive,
	}
	if err := h.deps.AddRate(c.Request.Context(), rc); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, rc)
}
