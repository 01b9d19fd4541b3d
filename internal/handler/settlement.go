package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paycore/internal/service"
)

// SettlementHandler handles HTTP requests for settlement of captured funds.
type SettlementHandler struct {
	settlementService *service.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementService *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlementService: settlementService}
}

// SettlementFailureRequest is the HTTP request body reported by a settlement channel.
type SettlementFailureRequest struct {
	Reason string `json:"reason"`
}

// SettlementCheckResponse is the HTTP response for a settlement reconciliation.
type SettlementCheckResponse struct {
	TransactionID    string          `json:"transaction_id"`
	Amount           decimal.Decimal `json:"amount"`
	SettlementAmount decimal.Decimal `json:"settlement_amount"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	Converted        decimal.Decimal `json:"converted"`
	Discrepancy      decimal.Decimal `json:"discrepancy"`
	Status           string          `json:"status"`
}

// Confirm handles POST /v1/transactions/:id/settle
func (h *SettlementHandler) Confirm(c *gin.Context) {
	txn, err := h.settlementService.ConfirmSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// ReportFailure handles POST /v1/transactions/:id/settlement/failure
func (h *SettlementHandler) ReportFailure(c *gin.Context) {
	var req SettlementFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	txn, err := h.settlementService.ReportSettlementFailure(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// Retry handles POST /v1/transactions/:id/settlement/retry
func (h *SettlementHandler) Retry(c *gin.Context) {
	txn, err := h.settlementService.RetrySettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondTransactionError(c, txn, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// Reconcile handles GET /v1/transactions/:id/settlement/reconcile
func (h *SettlementHandler) Reconcile(c *gin.Context) {
	check, err := h.settlementService.ReconcileSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SettlementCheckResponse{
		TransactionID:    check.TransactionID,
		Amount:           check.Amount,
		SettlementAmount: check.SettlementAmount,
		ExchangeRate:     check.ExchangeRate,
		Converted:        check.Converted,
		Discrepancy:      check.Discrepancy,
		Status:           string(check.Status),
	})
}
