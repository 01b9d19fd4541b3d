package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paycore/internal/domain"
	"paycore/internal/repository"
	"paycore/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransactionErrorResponse carries the transaction a failed pipeline step left
// behind, such as a fraud rejection or an issuer decline.
type TransactionErrorResponse struct {
	Error       string              `json:"error"`
	Transaction TransactionResponse `json:"transaction"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondTransactionError includes txn in the error body when the service
// returned one alongside err.
func respondTransactionError(c *gin.Context, txn *domain.Transaction, err error) {
	if txn == nil {
		respondError(c, err)
		return
	}
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, TransactionErrorResponse{
		Error:       err.Error(),
		Transaction: toTransactionResponse(txn),
	})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest rejects a body that could not be decoded.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest

	// Feature gates
	case errors.Is(err, service.ErrStageDisabled):
		return http.StatusForbidden

	// Risk and issuer verdicts
	case errors.Is(err, service.ErrFraudRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrDeclined):
		return http.StatusPaymentRequired

	// Conflict errors
	case service.IsConflict(err):
		return http.StatusConflict

	// Upstream processor
	case errors.Is(err, service.ErrGateway):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}

// timePtr keeps unset timestamps out of the JSON body.
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
