package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/payout"
)

// payoutRequest mirrors the OpenAPI schema for POST /v1/payouts. Dates are
// YYYY-MM-DD or RFC3339.
type payoutRequest struct {
	OperatorID    string            `json:"operator_id" binding:"required"`
	PeriodStart   string            `json:"period_start" binding:"required"`
	PeriodEnd     string            `json:"period_end" binding:"required"`
	PaymentMethod string            `json:"payment_method" binding:"required"`
	Destination   model.Destination `json:"destination"`
}

type approveRequest struct {
	ApprovedBy string `json:"approved_by" binding:"required"`
}

// PayoutsHandler serves the payout lifecycle.
type PayoutsHandler struct {
	deps Dependencies
}

// NewPayoutsHandler creates a new payouts handler.
func NewPayoutsHandler(deps Dependencies) *PayoutsHandler {
	return &PayoutsHandler{deps: deps}
}

// HandleRequest handles POST /v1/payouts.
func (h *PayoutsHandler) HandleRequest(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDomainError(c, WrapKind("request payout", ErrBadRequest, err))
		return
	}
	start, err := parseDate("period_start", req.PeriodStart, false)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	end, err := parseDate("period_end", req.PeriodEnd, true)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	p, err := h.deps.RequestPayout(c.Request.Context(), payout.Request{
		OperatorID:    strings.TrimSpace(req.OperatorID),
		PeriodStart:   start,
		PeriodEnd:     end,
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		Destination:   req.Destination,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

// HandleApprove handles POST /v1/payouts/:id/approve.
func (h *PayoutsHandler) HandleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDomainError(c, WrapKind("approve payout", ErrBadRequest, err))
		return
	}
	p, err := h.deps.ApprovePayout(c.Request.Context(), c.Param("id"), req.ApprovedBy)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// HandleProcess handles POST /v1/payouts/process. It runs one batch over
// every approved payout and reports per-payout outcomes.
func (h *PayoutsHandler) HandleProcess(c *gin.Context) {
	res, err := h.deps.ProcessPayouts(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if res.Completed == nil {
		res.Completed = []string{}
	}
	if res.Failed == nil {
		res.Failed = []payout.Failure{}
	}
	if res.Skipped == nil {
		res.Skipped = []string{}
	}
	writeJSON(c, http.StatusOK, res)
}

// HandleGet handles GET /v1/payouts/:id.
func (h *PayoutsHandler) HandleGet(c *gin.Context) {
	p, err := h.deps.GetPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// HandleListPayouts handles GET /v1/operators/:id/payouts.
func (h *PayoutsHandler) HandleListPayouts(c *gin.Context) {
	ps, err := h.deps.ListPayouts(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if ps == nil {
		ps = []model.Payout{}
	}
	writeJSON(c, http.StatusOK, ps)
}
