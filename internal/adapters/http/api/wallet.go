package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/shopspring/decimal"
)

// adjustmentRequest mirrors the OpenAPI schema for POST /v1/operators/{id}/adjustments.
type adjustmentRequest struct {
	Type   string          `json:"type" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required"`
}

type bookingCredited struct {
	Transaction model.Transaction `json:"transaction"`
	Duplicate   bool              `json:"duplicate"`
}

type transactionList struct {
	OperatorID   string              `json:"operator_id"`
	Count        int                 `json:"count"`
	Transactions []model.Transaction `json:"transactions"`
}

// WalletHandler serves commission credits, boundary fees and wallet reads.
type WalletHandler struct {
	deps Dependencies
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(deps Dependencies) *WalletHandler {
	return &WalletHandler{deps: deps}
}

// HandleBookingCompleted handles POST /v1/bookings/completed. A replayed
// booking answers 200 with the original transaction.
func (h *WalletHandler) HandleBookingCompleted(c *gin.Context) {
	var ev model.BookingEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeDomainError(c, WrapKind("booking completed", ErrBadRequest, err))
		return
	}
	tx, dup, err := h.deps.CreditBooking(c.Request.Context(), ev)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	status := http.StatusCreated
	if dup {
		status = http.StatusOK
	}
	writeJSON(c, status, bookingCredited{Transaction: tx, Duplicate: dup})
}

// HandleBoundaryFee handles POST /v1/boundary-fees.
func (h *WalletHandler) HandleBoundaryFee(c *gin.Context) {
	var sub boundary.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		writeDomainError(c, WrapKind("boundary fee", ErrBadRequest, err))
		return
	}
	fee, err := h.deps.RecordBoundaryFee(c.Request.Context(), sub)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, fee)
}

// HandleListBoundaryFees handles GET /v1/operators/:id/boundary-fees.
func (h *WalletHandler) HandleListBoundaryFees(c *gin.Context) {
	fees, err := h.deps.BoundaryFees(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if fees == nil {
		fees = []model.BoundaryFee{}
	}
	writeJSON(c, http.StatusOK, fees)
}

// HandleAdjustment handles POST /v1/operators/:id/adjustments.
func (h *WalletHandler) HandleAdjustment(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDomainError(c, WrapKind("adjustment", ErrBadRequest, err))
		return
	}
	tx, err := h.deps.PostAdjustment(c.Request.Context(), c.Param("id"),
		model.TransactionType(req.Type), req.Amount, req.Reason)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, tx)
}

// HandleGetWallet handles GET /v1/operators/:id/wallet.
func (h *WalletHandler) HandleGetWallet(c *gin.Context) {
	w, err := h.deps.Wallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, w)
}

// HandleListTransactions handles GET /v1/operators/:id/transactions.
// type takes a comma separated list.
func (h *WalletHandler) HandleListTransactions(c *gin.Context) {
	f, err := transactionFilter(c)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	operatorID := c.Param("id")
	txs, err := h.deps.Transactions(c.Request.Context(), operatorID, f)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(c, http.StatusOK, transactionList{OperatorID: operatorID, Count: len(txs), Transactions: txs})
}

func transactionFilter(c *gin.Context) (ledger.Filter, error) {
	var f ledger.Filter
	var err error
	if s := c.Query("from"); s != "" {
		if f.From, err = parseDate("from", s, false); err != nil {
			return f, err
		}
	}
	if s := c.Query("to"); s != "" {
		if f.To, err = parseDate("to", s, true); err != nil {
			return f, err
		}
	}
	if s := c.Query("type"); s != "" {
		for _, name := range strings.Split(s, ",") {
			t := model.TransactionType(strings.TrimSpace(name))
			if !slices.Contains(model.TransactionTypes, t) {
				return f, NewKind("unknown transaction type "+string(t), ErrBadRequest)
			}
			f.Types = append(f.Types, t)
		}
	}
	f.Limit, err = parseLimit(c.Query("limit"))
	return f, err
}

// HandleReconcile handles POST /v1/transactions/:id/reconcile.
func (h *WalletHandler) HandleReconcile(c *gin.Context) {
	tx, err := h.deps.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tx)
}
