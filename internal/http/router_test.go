package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/review-orchestrator/internal/config"
	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/http/handlers"
	"github.com/tbourn/review-orchestrator/internal/provider"
	"github.com/tbourn/review-orchestrator/internal/repo"
	"github.com/tbourn/review-orchestrator/internal/services"
	"github.com/tbourn/review-orchestrator/internal/throttle"
)

// validatingProvider yields two steps and returns a confirmed validation.
type validatingProvider struct{}

func (validatingProvider) Name() string { return "fake" }

func (validatingProvider) Execute(_ context.Context, _ provider.Params, yield func(provider.StepUpdate) error) (domain.Outcome, error) {
	for _, m := range []string{"reading issue", "reproducing"} {
		if err := yield(provider.StepUpdate{Message: m, Kind: domain.StepStatus}); err != nil {
			return domain.Outcome{}, err
		}
	}
	return domain.Outcome{
		Kind:       domain.OutcomeValidation,
		Validation: &domain.ValidationResult{Verdict: domain.VerdictConfirmed, Confidence: 90, Summary: "reproduced"},
	}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:   "/api/v1",
		MaxConcurrent: 2,
		MaxBacklog:    64,
		HistoryLimit:  100,
		WS:            config.WSConfig{PingInterval: time.Second, MaxFrameBytes: 1 << 16},
		OTEL:          config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestEngine(t *testing.T, cfg config.Config, guard *throttle.Guard) (*gin.Engine, *services.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	orch := NewOrchestrator(newTestDB(t), provider.NewDriver(validatingProvider{}), nil, cfg)
	wsSrv := RegisterRoutes(r, orch, guard, cfg)
	t.Cleanup(func() {
		wsSrv.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return r, orch
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestEngine(t, testConfig(), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("request id / security headers missing: %v", w.Header())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestEngine(t, cfg, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// cors skips same-host origins, and httptest defaults Host to example.com.
	req.Host = "api.internal"
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})
	cases := map[string]bool{"": true, "https://app.example.com": true, "https://evil.example.com": false}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := check(req); got != want {
			t.Fatalf("origin %q: got %v want %v", origin, got, want)
		}
	}
	if !originChecker(nil)(httptest.NewRequest(http.MethodGet, "/ws", nil)) {
		t.Fatalf("empty allowlist must accept everything")
	}
}

func TestRegisterRoutes_QueueAndGzip(t *testing.T) {
	r, _ := newTestEngine(t, testConfig(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /queue = %d", w.Code)
	}
	var snap domain.QueueSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil || len(snap.Jobs) != 0 {
		t.Fatalf("unexpected queue: %s (%v)", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, headers: %v", w.Header())
	}
}

func TestRegisterRoutes_ThrottleREST(t *testing.T) {
	guard := throttle.NewGuard(throttle.NewMemoryStorage(), throttle.Options{
		Limit: 1, TTL: time.Minute, BlockDuration: 2 * time.Second,
	})
	r, _ := newTestEngine(t, testConfig(), guard)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.7:5555"
		r.ServeHTTP(w, req)
		return w
	}

	if w := get("/api/v1/queue"); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := get("/api/v1/queue")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "2" {
		t.Fatalf("second request = %d retry-after=%q", w.Code, w.Header().Get("Retry-After"))
	}
	for i := 0; i < 3; i++ {
		if w := get("/health"); w.Code != http.StatusOK {
			t.Fatalf("/health must not be throttled, got %d", w.Code)
		}
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// wsMessage decodes events and replies alike.
type wsMessage struct {
	Type           string          `json:"type"`
	ID             string          `json:"id"`
	OK             bool            `json:"ok"`
	Data           json.RawMessage `json:"data"`
	HistoryEntryID string          `json:"history_entry_id"`
	Error          *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// End to end: a start command over the WebSocket runs to completion, the
// outcome is persisted, and REST sees it.
func TestPipeline_WebSocketStartToHistory(t *testing.T) {
	r, _ := newTestEngine(t, testConfig(), nil)
	ts := httptest.NewServer(r)
	defer ts.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	frame := map[string]any{
		"id": "f1", "command": "start",
		"payload": map[string]any{"repo": "Acme/API", "kind": "issue", "number": 12},
	}
	if err := c.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	var (
		replied  bool
		progress int
		entryID  string
	)
	deadline := time.Now().Add(5 * time.Second)
	for entryID == "" {
		_ = c.SetReadDeadline(deadline)
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v (replied=%v progress=%d)", err, replied, progress)
		}
		switch m.Type {
		case "reply":
			if !m.OK || m.ID != "f1" {
				t.Fatalf("start rejected: %+v", m)
			}
			replied = true
		case "progress":
			progress++
		case "complete":
			entryID = m.HistoryEntryID
		case "error":
			t.Fatalf("job failed: %+v", m.Error)
		}
	}
	if !replied || progress != 2 {
		t.Fatalf("replied=%v progress=%d", replied, progress)
	}

	resp, err := http.Get(ts.URL + "/api/v1/history?repo=acme/api")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	var list handlers.HistoryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].ID != entryID || list.Entries[0].Sequence != 1 {
		t.Fatalf("unexpected history: %+v", list.Entries)
	}
}

func TestRegisterRoutes_SwaggerDocs(t *testing.T) {
	cfg := testConfig()
	r, _ := newTestEngine(t, cfg, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}

	cfg.SwaggerEnabled = true
	r, _ = newTestEngine(t, cfg, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"operationId": "listHistory"`) {
		t.Fatalf("doc.json: code=%d body=%.200s", w.Code, w.Body.String())
	}
}
