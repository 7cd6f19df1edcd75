package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/services"
)

func Test_fail_500_LogsAndBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		failErr(c, errors.New("disk on fire"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "internal error" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "disk on fire") {
		t.Fatalf("expected error log with cause, got: %s", buf.String())
	}
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrAlreadyActive, http.StatusConflict, ErrCodeAlreadyActive},
		{fmt.Errorf("wrap: %w", services.ErrPreviousNotFound), http.StatusNotFound, ErrCodePreviousNotFound},
		{fmt.Errorf("%w: other repo", services.ErrInvalidChain), http.StatusUnprocessableEntity, ErrCodeInvalidChain},
		{services.ErrHistoryNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrInvalidRequest, http.StatusBadRequest, ErrCodeBadRequest},
		{domain.ErrInvalidEntity, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrShuttingDown, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{errors.New("x"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := ErrorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("ErrorStatus(%v) = %d %s; want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func Test_Fail_404_And_ok(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-404")
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })
	r.GET("/ok", func(c *gin.Context) { ok(c, CancelResponse{Cancelled: true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	var er ErrorResponse
	if w.Code != http.StatusNotFound || json.Unmarshal(w.Body.Bytes(), &er) != nil {
		t.Fatalf("404: code=%d body=%s", w.Code, w.Body.String())
	}
	if er.RequestID != "rid-404" || er.Code != ErrCodeNotFound || er.Message != "nope" {
		t.Fatalf("unexpected 404 body: %+v", er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"cancelled":true}` {
		t.Fatalf("ok: code=%d body=%s", w.Code, w.Body.String())
	}
}
