package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paycore/internal/service"
)

// CustomerHandler serves the billing-facing customer views.
type CustomerHandler struct {
	summaryService *service.SummaryService
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(summaryService *service.SummaryService) *CustomerHandler {
	return &CustomerHandler{summaryService: summaryService}
}

// CustomerSummaryResponse is the HTTP response for a customer summary.
type CustomerSummaryResponse struct {
	CustomerID        string          `json:"customer_id"`
	Currency          string          `json:"currency,omitempty"`
	TransactionCount  int             `json:"transaction_count"`
	CapturedCount     int             `json:"captured_count"`
	SettledCount      int             `json:"settled_count"`
	FailedCount       int             `json:"failed_count"`
	DisputedCount     int             `json:"disputed_count"`
	TotalCaptured     decimal.Decimal `json:"total_captured"`
	TotalSettled      decimal.Decimal `json:"total_settled"`
	TotalRefunded     decimal.Decimal `json:"total_refunded"`
	NetCollected      decimal.Decimal `json:"net_collected"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty"`
}

// Summary handles GET /v1/customers/:id/summary
func (h *CustomerHandler) Summary(c *gin.Context) {
	summary, err := h.summaryService.CustomerSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, CustomerSummaryResponse{
		CustomerID:        summary.CustomerID,
		Currency:          summary.Currency,
		TransactionCount:  summary.TransactionCount,
		CapturedCount:     summary.CapturedCount,
		SettledCount:      summary.SettledCount,
		FailedCount:       summary.FailedCount,
		DisputedCount:     summary.DisputedCount,
		TotalCaptured:     summary.TotalCaptured,
		TotalSettled:      summary.TotalSettled,
		TotalRefunded:     summary.TotalRefunded,
		NetCollected:      summary.NetCollected,
		LastTransactionAt: timePtr(summary.LastTransactionAt),
	})
}
