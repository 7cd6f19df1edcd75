// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the ingress guard to REST commands. Every request counts
// against the same limiter the WebSocket channel uses, keyed by client IP
// (falling back to the request ID). A blocked client gets a Retry-After
// header and a 429 envelope carrying the denial details.
package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/review-orchestrator/internal/throttle"
)

// ThrottleResponse is the 429 body.
type ThrottleResponse struct {
	RequestID         string `json:"request_id,omitempty"`
	Code              string `json:"code" example:"throttled"`
	Message           string `json:"message" example:"too many requests"`
	Limit             int    `json:"limit" example:"10"`
	IsBlocked         bool   `json:"is_blocked" example:"true"`
	TotalHits         int    `json:"total_hits" example:"11"`
	TimeToExpire      int64  `json:"time_to_expire" example:"60000"`
	TimeToBlockExpire int64  `json:"time_to_block_expire" example:"30000"`
}

// requestClient presents one HTTP request to the guard.
type requestClient struct{ c *gin.Context }

func (r requestClient) ID() string         { return RequestIDFrom(r.c) }
func (r requestClient) RemoteAddr() string { return r.c.ClientIP() }

// Notify sets Retry-After in whole seconds, rounded up.
func (r requestClient) Notify(t throttle.Throttled) error {
	secs := int(math.Ceil(float64(t.RetryAfter) / float64(time.Second/time.Millisecond)))
	r.c.Header("Retry-After", strconv.Itoa(secs))
	return nil
}

// Throttle gates requests through g. Requests whose route is in skip (for
// example /health, /metrics, and the WebSocket endpoint, which gates each
// frame itself) are not counted.
func Throttle(g *throttle.Guard, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, ok := skipped[path]; ok {
			c.Next()
			return
		}

		err := g.Check(c.Request.Context(), requestClient{c: c}, c.Request.Method+" "+path)
		var denied *throttle.DeniedError
		if !errors.As(err, &denied) {
			c.Next()
			return
		}

		LoggerFrom(c).Warn().
			Int("total_hits", denied.TotalHits).
			Int64("retry_after_ms", denied.TimeToBlockExpire).
			Msg("request throttled")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ThrottleResponse{
			RequestID:         RequestIDFrom(c),
			Code:              "throttled",
			Message:           "too many requests",
			Limit:             denied.Limit,
			IsBlocked:         denied.IsBlocked,
			TotalHits:         denied.TotalHits,
			TimeToExpire:      denied.TimeToExpire,
			TimeToBlockExpire: denied.TimeToBlockExpire,
		})
	}
}
