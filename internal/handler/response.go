package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"batchforge/internal/domain"
	"batchforge/internal/middleware"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	var (
		inputErr     *domain.InputError
		notReadyErr  *domain.NotReadyError
		parseErr     *domain.ParseError
		transportErr *domain.TransportError
	)
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		return http.StatusUnauthorized, "MISSING_API_KEY", "a provider API key is required"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrInvalidParams):
		return http.StatusBadRequest, "INVALID_PARAMS", err.Error()
	case errors.Is(err, domain.ErrNoRecords):
		return http.StatusBadRequest, "NO_RECORDS", "input contains no non-empty rows in its first column"
	case errors.As(err, &inputErr):
		return http.StatusBadRequest, "INVALID_INPUT", inputErr.Error()
	case errors.As(err, &notReadyErr):
		return http.StatusConflict, "JOB_NOT_READY", fmt.Sprintf("job is not ready for download (status: %s)", notReadyErr.Status)
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, "RESULT_PARSE_FAILED", parseErr.Error()
	case errors.Is(err, domain.ErrStorageDisabled):
		return http.StatusNotImplemented, "STORAGE_DISABLED", "result export storage is not configured"
	case errors.Is(err, domain.ErrLedgerDisabled):
		return http.StatusNotImplemented, "LEDGER_DISABLED", "job ledger is not configured"
	case errors.As(err, &transportErr):
		return transportStatus(transportErr), "PROVIDER_ERROR", transportErr.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// transportStatus picks the status returned when the provider call failed.
// Provider 4xx answers are passed through; everything else is a bad gateway.
func transportStatus(e *domain.TransportError) int {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get(middleware.ContextKeyRequestID)
		log.Printf("[%s] %s: %v", requestID, code, err)
	}

	var parseErr *domain.ParseError
	if errors.As(err, &parseErr) {
		c.JSON(status, APIResponse{
			Success: false,
			Data:    gin.H{"raw": string(parseErr.Raw)},
			Error:   &APIError{Code: code, Message: msg},
		})
		return
	}
	RespondError(c, status, code, msg)
}
