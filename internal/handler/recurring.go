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

// RecurringHandler handles HTTP requests for recurring payment schedules.
type RecurringHandler struct {
	recurringService *service.RecurringService
}

// NewRecurringHandler creates a new RecurringHandler.
func NewRecurringHandler(recurringService *service.RecurringService) *RecurringHandler {
	return &RecurringHandler{recurringService: recurringService}
}

// SetupRecurringRequest is the HTTP request body for creating a schedule.
// Dates are RFC 3339 timestamps.
type SetupRecurringRequest struct {
	CustomerID       string          `json:"customer_id"`
	BillingAccountID string          `json:"billing_account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"payment_method"`
	Country          string          `json:"country"`
	Description      string          `json:"description"`
	Frequency        string          `json:"frequency"`
	StartDate        *time.Time      `json:"start_date"`
	EndDate          *time.Time      `json:"end_date"`
	MaxRetries       int             `json:"max_retries"`
}

// RecurringResponse is the HTTP response for recurring payment operations.
type RecurringResponse struct {
	ID               string              `json:"id"`
	CustomerID       string              `json:"customer_id"`
	BillingAccountID string              `json:"billing_account_id,omitempty"`
	Amount           decimal.Decimal     `json:"amount"`
	Currency         string              `json:"currency"`
	PaymentMethod    string              `json:"payment_method"`
	Description      string              `json:"description,omitempty"`
	Frequency        string              `json:"frequency"`
	Status           string              `json:"status"`
	StartDate        time.Time           `json:"start_date"`
	EndDate          *time.Time          `json:"end_date,omitempty"`
	NextBillingDate  time.Time           `json:"next_billing_date"`
	ExecutionCount   int                 `json:"execution_count"`
	RetryCount       int                 `json:"retry_count"`
	Failures         int                 `json:"consecutive_failures"`
	MaxRetries       int                 `json:"max_retries"`
	NextRetryAt      *time.Time          `json:"next_retry_at,omitempty"`
	LastFailure      string              `json:"last_failure,omitempty"`
	Executions       []ExecutionResponse `json:"executions"`
}

type ExecutionResponse struct {
	ID            string    `json:"id"`
	Cycle         int       `json:"cycle"`
	Attempt       int       `json:"attempt"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// RunDueResponse reports a manual sweep.
type RunDueResponse struct {
	Attempted int    `json:"attempted"`
	Error     string `json:"error,omitempty"`
}

// Setup handles POST /v1/recurring-payments
func (h *RecurringHandler) Setup(c *gin.Context) {
	var req SetupRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	setup := service.RecurringRequest{
		CustomerID:       req.CustomerID,
		BillingAccountID: req.BillingAccountID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		PaymentMethod:    req.PaymentMethod,
		Country:          req.Country,
		Description:      req.Description,
		Frequency:        domain.Frequency(strings.ToUpper(req.Frequency)),
		MaxRetries:       req.MaxRetries,
	}
	if req.StartDate != nil {
		setup.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		setup.EndDate = req.EndDate.UTC()
	}

	rp, err := h.recurringService.Setup(c.Request.Context(), setup)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRecurringResponse(rp))
}

// Get handles GET /v1/recurring-payments/:id
func (h *RecurringHandler) Get(c *gin.Context) {
	rp, err := h.recurringService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRecurringResponse(rp))
}

// List handles GET /v1/recurring-payments
func (h *RecurringHandler) List(c *gin.Context) {
	rps, err := h.recurringService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RecurringResponse, 0, len(rps))
	for _, rp := range rps {
		response = append(response, toRecurringResponse(rp))
	}
	respondJSON(c, http.StatusOK, response)
}

// Execute handles POST /v1/recurring-payments/:id/execute
func (h *RecurringHandler) Execute(c *gin.Context) {
	rp, err := h.recurringService.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRecurringResponse(rp))
}

// Cancel handles POST /v1/recurring-payments/:id/cancel
func (h *RecurringHandler) Cancel(c *gin.Context) {
	rp, err := h.recurringService.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRecurringResponse(rp))
}

// RunDue handles POST /v1/recurring-payments/run-due
func (h *RecurringHandler) RunDue(c *gin.Context) {
	attempted, err := h.recurringService.ExecuteDue(c.Request.Context())
	if err != nil {
		// Individual schedule failures do not undo the ones that ran.
		respondJSON(c, http.StatusMultiStatus, RunDueResponse{Attempted: attempted, Error: err.Error()})
		return
	}

	respondJSON(c, http.StatusOK, RunDueResponse{Attempted: attempted})
}

func toRecurringResponse(rp *domain.RecurringPayment) RecurringResponse {
	resp := RecurringResponse{
		ID:               rp.ID,
		CustomerID:       rp.CustomerID,
		BillingAccountID: rp.BillingAccountID,
		Amount:           rp.Amount,
		Currency:         rp.Currency,
		PaymentMethod:    string(rp.PaymentMethod),
		Description:      rp.Description,
		Frequency:        string(rp.Frequency),
		Status:           string(rp.Status),
		StartDate:        rp.StartDate,
		EndDate:          timePtr(rp.EndDate),
		NextBillingDate:  rp.NextBillingDate,
		ExecutionCount:   rp.ExecutionCount,
		RetryCount:       rp.RetryCount,
		Failures:         rp.ConsecutiveFailures,
		MaxRetries:       rp.MaxRetries,
		NextRetryAt:      timePtr(rp.NextRetryAt),
		LastFailure:      rp.LastFailure,
		Executions:       make([]ExecutionResponse, 0, len(rp.Executions)),
	}
	for _, e := range rp.Executions {
		resp.Executions = append(resp.Executions, ExecutionResponse{
			ID:            e.ID,
			Cycle:         e.Cycle,
			Attempt:       e.Attempt,
			TransactionID: e.TransactionID,
			Status:        string(e.Status),
			FailureReason: e.FailureReason,
			ScheduledFor:  e.ScheduledFor,
			ExecutedAt:    e.ExecutedAt,
		})
	}
	return resp
}
