package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/internal/domain/model"
)

// metricsRequest mirrors the OpenAPI schema for POST /v1/operators/{id}/metrics.
type metricsRequest struct {
	SubmissionID string             `json:"submission_id"`
	Period       string             `json:"period" binding:"required"`
	Frequency    string             `json:"frequency" binding:"required"`
	Metrics      map[string]float64 `json:"metrics" binding:"required"`
}

// periodRequest names one scoring period.
type periodRequest struct {
	Period    string `json:"period" binding:"required"`
	Frequency string `json:"frequency" binding:"required"`
}

type submissionAccepted struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

// ScoresHandler serves metric submission, score reads and tier evaluation.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleSubmitMetrics handles POST /v1/operators/:id/metrics. The submission
// is queued unless sync=true, in which case it is scored inline.
func (h *ScoresHandler) HandleSubmitMetrics(c *gin.Context) {
	var req metricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDomainError(c, WrapKind("submit metrics", ErrBadRequest, err))
		return
	}
	sub := model.MetricSubmission{
		SubmissionID: req.SubmissionID,
		OperatorID:   c.Param("id"),
		Period:       req.Period,
		Frequency:    model.Frequency(req.Frequency),
		Metrics:      model.MetricSet(req.Metrics),
	}

	ctx := c.Request.Context()
	if c.Query("sync") == "true" {
		res, err := h.deps.ScoreMetrics(ctx, sub)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		writeJSON(c, http.StatusCreated, res)
		return
	}

	id, err := h.deps.SubmitMetrics(ctx, sub)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, submissionAccepted{SubmissionID: id, Status: "queued"})
}

// HandleGetScore handles GET /v1/operators/:id/score. Without a period the
// latest score is returned; frequency defaults to monthly.
func (h *ScoresHandler) HandleGetScore(c *gin.Context) {
	ctx := c.Request.Context()
	operatorID := c.Param("id")

	period := strings.TrimSpace(c.Query("period"))
	if period == "" {
		ps, err := h.deps.LatestScore(ctx, operatorID)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, ps)
		return
	}

	f, err := model.ParseFrequency(c.DefaultQuery("frequency", string(model.Monthly)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	ps, err := h.deps.Score(ctx, operatorID, period, f)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

// HandleFinalize handles POST /v1/operators/:id/scores/finalize.
func (h *ScoresHandler) HandleFinalize(c *gin.Context) {
	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDomainError(c, WrapKind("finalize score", ErrBadRequest, err))
		return
	}
	f, err := model.ParseFrequency(req.Frequency)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	ps, err := h.deps.FinalizeScore(c.Request.Context(), c.Param("id"), req.Period, f)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

// HandleGetTier handles GET /v1/operators/:id/tier.
func (h *ScoresHandler) HandleGetTier(c *gin.Context) {
	q, err := h.deps.Tier(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

// HandlePutProfile handles PUT /v1/operators/:id/profile.
func (h *ScoresHandler) HandlePutProfile(c *gin.Context) {
	var p model.OperatorProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		writeDomainError(c, WrapKind("put profile", ErrBadRequest, err))
		return
	}
	id := c.Param("id")
	if p.ID != "" && p.ID != id {
		writeError(c, http.StatusBadRequest, "bad_request", "profile id does not match path")
		return
	}
	p.ID = id
	if err := h.deps.PutProfile(c.Request.Context(), p); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// HandleGetProfile handles GET /v1/operators/:id/profile.
func (h *ScoresHandler) HandleGetProfile(c *gin.Context) {
	p, err := h.deps.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
