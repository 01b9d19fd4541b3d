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

// DisputeHandler handles HTTP requests for disputes.
type DisputeHandler struct {
	disputeService *service.DisputeService
}

// NewDisputeHandler creates a new DisputeHandler.
func NewDisputeHandler(disputeService *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService}
}

// OpenDisputeRequest is the HTTP request body for opening a dispute.
type OpenDisputeRequest struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Reason        string `json:"reason"`
}

// EvidenceRequest is the HTTP request body for submitting dispute evidence.
type EvidenceRequest struct {
	Description string   `json:"description"`
	Documents   []string `json:"documents"`
	SubmittedBy string   `json:"submitted_by"`
}

// ResolveDisputeRequest is the HTTP request body for resolving a dispute.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome"`
}

// DisputeResponse is the HTTP response for dispute operations.
type DisputeResponse struct {
	ID               string             `json:"id"`
	TransactionID    string             `json:"transaction_id"`
	CustomerID       string             `json:"customer_id"`
	Type             string             `json:"type"`
	Reason           string             `json:"reason,omitempty"`
	Amount           decimal.Decimal    `json:"amount"`
	Currency         string             `json:"currency"`
	Status           string             `json:"status"`
	PreDisputeStatus string             `json:"pre_dispute_status"`
	Evidence         []EvidenceResponse `json:"evidence"`
	ChargebackID     string             `json:"chargeback_id,omitempty"`
	InitiatedAt      time.Time          `json:"initiated_at"`
	DueAt            time.Time          `json:"due_at"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
}

type EvidenceResponse struct {
	Description string    `json:"description"`
	Documents   []string  `json:"documents,omitempty"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// OpenDispute handles POST /v1/disputes
func (h *DisputeHandler) OpenDispute(c *gin.Context) {
	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	if req.TransactionID == "" {
		badRequest(c, "transaction_id is required")
		return
	}

	dispute, err := h.disputeService.OpenDispute(c.Request.Context(), service.OpenDisputeRequest{
		TransactionID: req.TransactionID,
		Type:          domain.DisputeType(strings.ToUpper(req.Type)),
		Reason:        req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toDisputeResponse(dispute))
}

// SubmitEvidence handles POST /v1/disputes/:id/evidence
func (h *DisputeHandler) SubmitEvidence(c *gin.Context) {
	var req EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	dispute, err := h.disputeService.SubmitEvidence(c.Request.Context(), c.Param("id"), service.EvidenceRequest{
		Description: req.Description,
		Documents:   req.Documents,
		SubmittedBy: req.SubmittedBy,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDisputeResponse(dispute))
}

// Resolve handles POST /v1/disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	outcome := domain.DisputeOutcome(strings.ToUpper(req.Outcome))
	dispute, err := h.disputeService.ResolveDispute(c.Request.Context(), c.Param("id"), outcome)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDisputeResponse(dispute))
}

// GetDispute handles GET /v1/disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	dispute, err := h.disputeService.GetDispute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDisputeResponse(dispute))
}

// ListDisputes handles GET /v1/transactions/:id/disputes
func (h *DisputeHandler) ListDisputes(c *gin.Context) {
	disputes, err := h.disputeService.ListDisputes(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DisputeResponse, 0, len(disputes))
	for _, dispute := range disputes {
		response = append(response, toDisputeResponse(dispute))
	}
	respondJSON(c, http.StatusOK, response)
}

func toDisputeResponse(dispute *domain.Dispute) DisputeResponse {
	resp := DisputeResponse{
		ID:               dispute.ID,
		TransactionID:    dispute.TransactionID,
		CustomerID:       dispute.CustomerID,
		Type:             string(dispute.Type),
		Reason:           dispute.Reason,
		Amount:           dispute.Amount,
		Currency:         dispute.Currency,
		Status:           string(dispute.Status),
		PreDisputeStatus: string(dispute.PreDisputeStatus),
		Evidence:         make([]EvidenceResponse, 0, len(dispute.Evidence)),
		ChargebackID:     dispute.ChargebackID,
		InitiatedAt:      dispute.InitiatedAt,
		DueAt:            dispute.DueAt,
		ResolvedAt:       timePtr(dispute.ResolvedAt),
	}
	for _, e := range dispute.Evidence {
		resp.Evidence = append(resp.Evidence, EvidenceResponse{
			Description: e.Description,
			Documents:   e.Documents,
			SubmittedBy: e.SubmittedBy,
			SubmittedAt: e.SubmittedAt,
		})
	}
	return resp
}
