package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/review-orchestrator/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by every REST endpoint. The
// WebSocket channel replies with the same codes.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating with server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code, see errors.go.
	Code string `json:"code" example:"not_found"`
	// Safe to show to users.
	Message string `json:"message" example:"history entry not found"`
}

func newError(c *gin.Context, code, msg string) ErrorResponse {
	return ErrorResponse{RequestID: middleware.RequestIDFrom(c), Code: code, Message: msg}
}

// fail aborts with the envelope. Anything 5xx is logged with the request
// logger; 4xx is the client's problem and stays out of error logs.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("route", c.FullPath()).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, newError(c, code, msg))
}

// Fail lets the router write envelopes for NoRoute and NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a 200 JSON body. Every successful endpoint returns a body, even
// deletes and cancels, so clients can tell a no-op from a change.
func ok(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}
