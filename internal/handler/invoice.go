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

// InvoiceHandler handles invoice registration and reconciliation.
type InvoiceHandler struct {
	reconciliationService *service.ReconciliationService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(reconciliationService *service.ReconciliationService) *InvoiceHandler {
	return &InvoiceHandler{reconciliationService: reconciliationService}
}

// RegisterInvoiceRequest is the HTTP request body sent by billing.
type RegisterInvoiceRequest struct {
	InvoiceID        string          `json:"invoice_id"`
	CustomerID       string          `json:"customer_id"`
	BillingAccountID string          `json:"billing_account_id"`
	AmountOwed       decimal.Decimal `json:"amount_owed"`
	Currency         string          `json:"currency"`
}

// RecordPaymentRequest is the HTTP request body for an external invoice payment.
type RecordPaymentRequest struct {
	PaymentID       string          `json:"payment_id"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number"`
}

// InvoiceResponse is the HTTP response for invoice operations.
type InvoiceResponse struct {
	ID               string                  `json:"id"`
	CustomerID       string                  `json:"customer_id"`
	BillingAccountID string                  `json:"billing_account_id,omitempty"`
	AmountOwed       decimal.Decimal         `json:"amount_owed"`
	Currency         string                  `json:"currency"`
	Payments         []PaymentRecordResponse `json:"payments"`
	LastReconciledAt *time.Time              `json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

type PaymentRecordResponse struct {
	PaymentID       string          `json:"payment_id"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	PaymentDate     time.Time       `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
}

// ReconciliationReportResponse is the HTTP response for a reconciliation run.
type ReconciliationReportResponse struct {
	InvoiceID    string          `json:"invoice_id"`
	AmountOwed   decimal.Decimal `json:"amount_owed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Discrepancy  decimal.Decimal `json:"discrepancy"`
	Tolerance    decimal.Decimal `json:"tolerance"`
	Status       string          `json:"status"`
	PaymentCount int             `json:"payment_count"`
	ReconciledAt time.Time       `json:"reconciled_at"`
}

// Register handles POST /v1/invoices
func (h *InvoiceHandler) Register(c *gin.Context) {
	var req RegisterInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	invoice, err := h.reconciliationService.RegisterInvoice(c.Request.Context(), service.RegisterInvoiceRequest{
		InvoiceID:        req.InvoiceID,
		CustomerID:       req.CustomerID,
		BillingAccountID: req.BillingAccountID,
		AmountOwed:       req.AmountOwed,
		Currency:         req.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toInvoiceResponse(invoice))
}

// GetInvoice handles GET /v1/invoices/:id
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.reconciliationService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toInvoiceResponse(invoice))
}

// RecordPayment handles POST /v1/invoices/:id/payments
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	invoice, err := h.reconciliationService.RecordInvoicePayment(c.Request.Context(), c.Param("id"), service.RecordPaymentRequest{
		PaymentID:       req.PaymentID,
		AmountPaid:      req.AmountPaid,
		PaymentMethod:   domain.PaymentMethod(strings.ToUpper(req.PaymentMethod)),
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toInvoiceResponse(invoice))
}

// Reconcile handles POST /v1/reconciliation/:invoiceId
func (h *InvoiceHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciliationService.Reconcile(c.Request.Context(), c.Param("invoiceId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ReconciliationReportResponse{
		InvoiceID:    report.InvoiceID,
		AmountOwed:   report.AmountOwed,
		TotalPaid:    report.TotalPaid,
		Discrepancy:  report.Discrepancy,
		Tolerance:    report.Tolerance,
		Status:       string(report.Status),
		PaymentCount: report.PaymentCount,
		ReconciledAt: report.ReconciledAt,
	})
}

func toInvoiceResponse(invoice *domain.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:               invoice.ID,
		CustomerID:       invoice.CustomerID,
		BillingAccountID: invoice.BillingAccountID,
		AmountOwed:       invoice.AmountOwed,
		Currency:         invoice.Currency,
		Payments:         make([]PaymentRecordResponse, 0, len(invoice.Payments)),
		LastReconciledAt: timePtr(invoice.LastReconciledAt),
		CreatedAt:        invoice.CreatedAt,
	}
	for _, p := range invoice.Payments {
		resp.Payments = append(resp.Payments, PaymentRecordResponse{
			PaymentID:       p.PaymentID,
			AmountPaid:      p.AmountPaid,
			PaymentDate:     p.PaymentDate,
			PaymentMethod:   string(p.PaymentMethod),
			ReferenceNumber: p.ReferenceNumber,
		})
	}
	return resp
}
