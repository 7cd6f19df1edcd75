// Error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, domain codes carry what status alone
// cannot (a job already in flight, a broken re-review chain).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_active",
//	  "message": "a job is already active for acme/api#pr/42"
//	}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/http/middleware"
	"github.com/tbourn/review-orchestrator/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Domain-specific:
	ErrCodeAlreadyActive    = "already_active"
	ErrCodeThrottled        = "throttled"
	ErrCodePreviousNotFound = "previous_not_found"
	ErrCodeInvalidChain     = "invalid_chain"
)

// ErrorStatus maps a service error onto an HTTP status and a stable code.
// Unknown errors are internal.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrAlreadyActive):
		return http.StatusConflict, ErrCodeAlreadyActive
	case errors.Is(err, services.ErrPreviousNotFound):
		return http.StatusNotFound, ErrCodePreviousNotFound
	case errors.Is(err, services.ErrInvalidChain):
		return http.StatusUnprocessableEntity, ErrCodeInvalidChain
	case errors.Is(err, services.ErrHistoryNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidEntity):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, services.ErrShuttingDown):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failErr writes the envelope for a service error. Internal errors keep their
// detail out of the response body.
func failErr(c *gin.Context, err error) {
	status, code := ErrorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Msg("service error")
		msg = "internal error"
	}
	fail(c, status, code, msg)
}
