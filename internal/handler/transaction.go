package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

// TransactionHandler handles HTTP requests for transactions.
type TransactionHandler struct {
	paymentService *service.PaymentService
	summaryService *service.SummaryService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(paymentService *service.PaymentService, summaryService *service.SummaryService) *TransactionHandler {
	return &TransactionHandler{paymentService: paymentService, summaryService: summaryService}
}

// SubmitPaymentRequest is the HTTP request body for submitting a payment.
// Amounts are accepted as JSON numbers or strings.
type SubmitPaymentRequest struct {
	CustomerID       string          `json:"customer_id"`
	BillingAccountID string          `json:"billing_account_id"`
	OrderID          string          `json:"order_id"`
	InvoiceID        string          `json:"invoice_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"payment_method"`
	Country          string          `json:"country"`
	Description      string          `json:"description"`
	IdempotencyKey   string          `json:"idempotency_key"`
	Instrument       string          `json:"instrument"`
	Brand            string          `json:"brand"`
}

// ReasonRequest is the optional body of void and cancel calls.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// TransactionResponse is the HTTP response for transaction operations.
type TransactionResponse struct {
	ID               string                 `json:"id"`
	ReferenceNumber  string                 `json:"reference_number"`
	CustomerID       string                 `json:"customer_id"`
	BillingAccountID string                 `json:"billing_account_id,omitempty"`
	OrderID          string                 `json:"order_id,omitempty"`
	InvoiceID        string                 `json:"invoice_id,omitempty"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	PaymentMethod    string                 `json:"payment_method"`
	Country          string                 `json:"country,omitempty"`
	Status           string                 `json:"status"`
	Description      string                 `json:"description,omitempty"`
	IdempotencyKey   string                 `json:"idempotency_key,omitempty"`
	PaymentDetails   *PaymentDetailsResponse `json:"payment_details,omitempty"`
	Compliance       *ComplianceResponse     `json:"compliance,omitempty"`
	Authorization    *AuthorizationResponse  `json:"authorization,omitempty"`
	Settlement       *SettlementResponse     `json:"settlement,omitempty"`
	RefundState      string                 `json:"refund_state"`
	RefundedAmount   decimal.Decimal        `json:"refunded_amount"`
	Events           []EventResponse        `json:"events"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// PaymentDetailsResponse never carries the raw instrument.
type PaymentDetailsResponse struct {
	Last4     string `json:"last4,omitempty"`
	Token     string `json:"token,omitempty"`
	Tokenized bool   `json:"tokenized"`
	Brand     string `json:"brand,omitempty"`
}

type ComplianceResponse struct {
	RiskTier      string             `json:"risk_tier"`
	Scores        map[string]float64 `json:"scores,omitempty"`
	OverallScore  float64            `json:"overall_score"`
	FraudDetected bool               `json:"fraud_detected"`
	ManualReview  bool               `json:"manual_review"`
	Reason        string             `json:"reason,omitempty"`
	PCICompliant  bool               `json:"pci_compliant"`
	AMLChecked    bool               `json:"aml_checked"`
	KYCValidated  bool               `json:"kyc_validated"`
	CheckedAt     *time.Time         `json:"checked_at,omitempty"`
}

type AuthorizationResponse struct {
	Code             string          `json:"code,omitempty"`
	Status           string          `json:"status"`
	AuthorizedAmount decimal.Decimal `json:"authorized_amount"`
	IssuedAt         *time.Time      `json:"issued_at,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	ThreeDSecure     bool            `json:"three_d_secure"`
	ChallengeID      string          `json:"challenge_id,omitempty"`
	ResponseCode     string          `json:"response_code,omitempty"`
	ResponseMessage  string          `json:"response_message,omitempty"`
}

type SettlementResponse struct {
	ID            string          `json:"id"`
	Channel       string          `json:"channel"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	ProjectedAt   *time.Time      `json:"projected_at,omitempty"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
	RetryCount    int             `json:"retry_count"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

type EventResponse struct {
	Sequence    int       `json:"sequence"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// OrderStatusResponse is the order-facing view of a transaction.
type OrderStatusResponse struct {
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id,omitempty"`
	Status        string    `json:"status"`
	Fulfillable   bool      `json:"fulfillable"`
	UpdatedAt     time.Time `json:"updated_at"`
	Cached        bool      `json:"cached"`
}

// SubmitPayment handles POST /v1/transactions
func (h *TransactionHandler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader(idempotencyHeader)
	}

	txn, err := h.paymentService.SubmitPayment(c.Request.Context(), service.PaymentIntent{
		CustomerID:       req.CustomerID,
		BillingAccountID: req.BillingAccountID,
		OrderID:          req.OrderID,
		InvoiceID:        req.InvoiceID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		PaymentMethod:    req.PaymentMethod,
		Country:          req.Country,
		Description:      req.Description,
		IdempotencyKey:   key,
		Instrument:       req.Instrument,
		Brand:            req.Brand,
	})
	if err != nil {
		respondTransactionError(c, txn, err)
		return
	}

	respondJSON(c, http.StatusCreated, toTransactionResponse(txn))
}

// GetTransaction handles GET /v1/transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	txn, err := h.paymentService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// GetByReference handles GET /v1/transactions/reference/:reference
func (h *TransactionHandler) GetByReference(c *gin.Context) {
	txn, err := h.paymentService.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// ListTransactions handles GET /v1/transactions?customer_id=
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	txns, err := h.paymentService.ListTransactions(c.Request.Context(), c.Query("customer_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		response = append(response, toTransactionResponse(txn))
	}
	respondJSON(c, http.StatusOK, response)
}

// Authorize handles POST /v1/transactions/:id/authorize
func (h *TransactionHandler) Authorize(c *gin.Context) {
	txn, err := h.paymentService.Authorize(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondTransactionError(c, txn, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// Capture handles POST /v1/transactions/:id/capture
func (h *TransactionHandler) Capture(c *gin.Context) {
	txn, err := h.paymentService.Capture(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondTransactionError(c, txn, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// Void handles POST /v1/transactions/:id/void
func (h *TransactionHandler) Void(c *gin.Context) {
	var req ReasonRequest
	// The body is optional.
	_ = c.ShouldBindJSON(&req)

	txn, err := h.paymentService.VoidAuthorization(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondTransactionError(c, txn, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// Cancel handles POST /v1/transactions/:id/cancel
func (h *TransactionHandler) Cancel(c *gin.Context) {
	var req ReasonRequest
	_ = c.ShouldBindJSON(&req)

	txn, err := h.paymentService.CancelTransaction(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTransactionResponse(txn))
}

// OrderStatus handles GET /v1/transactions/:id/order-status
func (h *TransactionHandler) OrderStatus(c *gin.Context) {
	status, err := h.summaryService.OrderStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, OrderStatusResponse{
		TransactionID: status.TransactionID,
		OrderID:       status.OrderID,
		Status:        string(status.Status),
		Fulfillable:   status.Fulfillable,
		UpdatedAt:     status.UpdatedAt,
		Cached:        status.Cached,
	})
}

func toTransactionResponse(txn *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:               txn.ID,
		ReferenceNumber:  txn.ReferenceNumber,
		CustomerID:       txn.CustomerID,
		BillingAccountID: txn.BillingAccountID,
		OrderID:          txn.OrderID,
		InvoiceID:        txn.InvoiceID,
		Amount:           txn.Amount,
		Currency:         txn.Currency,
		PaymentMethod:    string(txn.PaymentMethod),
		Country:          txn.Country,
		Status:           string(txn.Status),
		Description:      txn.Description,
		IdempotencyKey:   txn.IdempotencyKey,
		RefundState:      string(txn.RefundState),
		RefundedAmount:   txn.RefundedAmount,
		Events:           make([]EventResponse, 0, len(txn.Events)),
		CreatedAt:        txn.CreatedAt,
		UpdatedAt:        txn.UpdatedAt,
	}

	if pd := txn.PaymentDetails; pd != nil {
		resp.PaymentDetails = &PaymentDetailsResponse{
			Last4:     pd.Last4,
			Token:     pd.Token,
			Tokenized: pd.Tokenized,
			Brand:     pd.Brand,
		}
	}
	if ci := txn.Compliance; ci != nil {
		resp.Compliance = &ComplianceResponse{
			RiskTier:      string(ci.RiskTier),
			Scores:        ci.Scores,
			OverallScore:  ci.OverallScore,
			FraudDetected: ci.FraudDetected,
			ManualReview:  ci.ManualReview,
			Reason:        ci.Reason,
			PCICompliant:  ci.PCICompliant,
			AMLChecked:    ci.AMLChecked,
			KYCValidated:  ci.KYCValidated,
			CheckedAt:     timePtr(ci.CheckedAt),
		}
	}
	if ai := txn.Authorization; ai != nil {
		resp.Authorization = &AuthorizationResponse{
			Code:             ai.Code,
			Status:           ai.Status,
			AuthorizedAmount: ai.AuthorizedAmount,
			IssuedAt:         timePtr(ai.IssuedAt),
			ExpiresAt:        timePtr(ai.ExpiresAt),
			ThreeDSecure:     ai.ThreeDSecure,
			ChallengeID:      ai.ChallengeID,
			ResponseCode:     ai.ResponseCode,
			ResponseMessage:  ai.ResponseMessage,
		}
	}
	if si := txn.Settlement; si != nil {
		resp.Settlement = &SettlementResponse{
			ID:            si.ID,
			Channel:       si.Channel,
			Status:        string(si.Status),
			Amount:        si.Amount,
			Currency:      si.Currency,
			ExchangeRate:  si.ExchangeRate,
			ProjectedAt:   timePtr(si.ProjectedAt),
			SettledAt:     timePtr(si.SettledAt),
			RetryCount:    si.RetryCount,
			NextRetryAt:   timePtr(si.NextRetryAt),
			FailureReason: si.FailureReason,
		}
	}
	for _, e := range txn.Events {
		resp.Events = append(resp.Events, EventResponse{
			Sequence:    e.Sequence,
			Type:        string(e.Type),
			Status:      string(e.Status),
			Description: e.Description,
			Actor:       e.Actor,
			OccurredAt:  e.OccurredAt,
		})
	}
	return resp
}
