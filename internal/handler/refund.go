package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/service"
)

// RefundHandler handles HTTP requests for refunds.
type RefundHandler struct {
	refundService *service.RefundService
}

// NewRefundHandler creates a new RefundHandler.
func NewRefundHandler(refundService *service.RefundService) *RefundHandler {
	return &RefundHandler{refundService: refundService}
}

// RequestRefundRequest is the HTTP request body for requesting a refund. A
// missing amount refunds the remaining balance.
type RequestRefundRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	Notes         string          `json:"notes"`
}

// RefundResponse is the HTTP response for refund operations.
type RefundResponse struct {
	ID               string          `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	CustomerID       string          `json:"customer_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Reason           string          `json:"reason"`
	Notes            string          `json:"notes,omitempty"`
	ProcessingFee    decimal.Decimal `json:"processing_fee"`
	RefundableAmount decimal.Decimal `json:"refundable_amount"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	InitiatedAt      time.Time       `json:"initiated_at"`
	SubmittedAt      *time.Time      `json:"submitted_at,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// RequestRefund handles POST /v1/refunds
func (h *RefundHandler) RequestRefund(c *gin.Context) {
	var req RequestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if req.TransactionID == "" {
		badRequest(c, "transaction_id is required")
		return
	}

	refund, err := h.refundService.RequestRefund(c.Request.Context(), service.RefundRequest{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Reason:        domain.RefundReason(strings.ToUpper(req.Reason)),
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRefundResponse(refund))
}

// GetRefund handles GET /v1/refunds/:id
func (h *RefundHandler) GetRefund(c *gin.Context) {
	refund, err := h.refundService.GetRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRefundResponse(refund))
}

// ListRefunds handles GET /v1/transactions/:id/refunds
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	refunds, err := h.refundService.ListRefunds(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RefundResponse, 0, len(refunds))
	for _, refund := range refunds {
		response = append(response, toRefundResponse(refund))
	}
	respondJSON(c, http.StatusOK, response)
}

// Approve handles POST /v1/refunds/:id/approve
func (h *RefundHandler) Approve(c *gin.Context) {
	refund, err := h.refundService.ApproveRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRefundResponse(refund))
}

// Complete handles POST /v1/refunds/:id/complete
func (h *RefundHandler) Complete(c *gin.Context) {
	refund, err := h.refundService.CompleteRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRefundResponse(refund))
}

// Cancel handles POST /v1/refunds/:id/cancel
func (h *RefundHandler) Cancel(c *gin.Context) {
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)

	refund, err := h.refundService.CancelRefund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRefundResponse(refund))
}

func toRefundResponse(refund *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:               refund.ID,
		TransactionID:    refund.TransactionID,
		CustomerID:       refund.CustomerID,
		Amount:           refund.Amount,
		Currency:         refund.Currency,
		Status:           string(refund.Status),
		Reason:           string(refund.Reason),
		Notes:            refund.Notes,
		ProcessingFee:    refund.ProcessingFee,
		RefundableAmount: refund.RefundableAmount,
		FailureReason:    refund.FailureReason,
		InitiatedAt:      refund.InitiatedAt,
		SubmittedAt:      timePtr(refund.SubmittedAt),
		ProcessedAt:      timePtr(refund.ProcessedAt),
		CompletedAt:      timePtr(refund.CompletedAt),
	}
}
