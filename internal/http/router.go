// Package httpapi wires the HTTP transport (Gin) to the orchestrator: REST
// handlers, the WebSocket command channel, and the cross-cutting middleware
// (tracing, correlation IDs, redacted logging, recovery, metrics, CORS,
// security headers, compression, ingress throttling).
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/review-orchestrator/docs"
	"github.com/tbourn/review-orchestrator/internal/config"
	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/http/handlers"
	"github.com/tbourn/review-orchestrator/internal/http/middleware"
	"github.com/tbourn/review-orchestrator/internal/http/ws"
	"github.com/tbourn/review-orchestrator/internal/jobs"
	"github.com/tbourn/review-orchestrator/internal/provider"
	"github.com/tbourn/review-orchestrator/internal/repo"
	"github.com/tbourn/review-orchestrator/internal/services"
	"github.com/tbourn/review-orchestrator/internal/stream"
	"github.com/tbourn/review-orchestrator/internal/throttle"
)

const wsPath = "/ws"

// historyRepoShim adapts the repository free functions to services.HistoryRepo.
type historyRepoShim struct{}

func (historyRepoShim) CreateHistoryEntry(ctx context.Context, db *gorm.DB, e *domain.HistoryEntry) error {
	return repo.CreateHistoryEntry(ctx, db, e)
}

func (historyRepoShim) GetHistoryEntry(ctx context.Context, db *gorm.DB, id string) (*domain.HistoryEntry, error) {
	return repo.GetHistoryEntry(ctx, db, id)
}

func (historyRepoShim) ListHistory(ctx context.Context, db *gorm.DB, repository string, kind domain.EntityKind, number, limit int) ([]domain.HistoryEntry, error) {
	return repo.ListHistory(ctx, db, repository, repo.HistoryFilter{Kind: kind, Number: number, Limit: limit})
}

func (historyRepoShim) DeleteHistoryEntry(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.DeleteHistoryEntry(ctx, db, id)
}

// NewHistoryService returns a HistoryService over db with the configured
// list cap.
func NewHistoryService(db *gorm.DB, cfg config.Config) *services.HistoryService {
	h := services.NewHistoryService(db, historyRepoShim{})
	if cfg.HistoryLimit > 0 {
		h.MaxLimit = cfg.HistoryLimit
	}
	return h
}

// NewOrchestrator assembles registry, bus and history around exec.
func NewOrchestrator(db *gorm.DB, exec jobs.Executor, profiles *provider.Profiles, cfg config.Config) *services.Orchestrator {
	bus := stream.NewBus(stream.Options{MaxBacklog: cfg.MaxBacklog})
	return services.NewOrchestrator(exec, bus, NewHistoryService(db, cfg), services.OrchestratorOptions{
		MaxConcurrent: cfg.MaxConcurrent,
		Profiles:      profiles,
	})
}

// RegisterRoutes attaches middleware and endpoints to r and returns the
// WebSocket server so the caller can close its connections on shutdown.
// guard may be nil to disable throttling.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//  8. Gzip (WebSocket path excluded)
//  9. Ingress throttle for REST commands; WebSocket frames are gated per frame
func RegisterRoutes(r *gin.Engine, orch *services.Orchestrator, guard *throttle.Guard, cfg config.Config) *ws.Server {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-GitHub-Token", "X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath, "/metrics"})))
	if guard != nil {
		r.Use(middleware.Throttle(guard, "/health", "/metrics", wsPath, "/swagger/*any"))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	var gate ws.Gate
	if guard != nil {
		gate = guard
	}
	wsSrv := ws.NewServer(orch, gate, ws.Options{
		PingInterval:  cfg.WS.PingInterval,
		MaxFrameBytes: cfg.WS.MaxFrameBytes,
		CheckOrigin:   originChecker(cfg.CORS.AllowedOrigins),
	})
	r.GET(wsPath, wsSrv.Handle)

	h := handlers.New(orch)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Jobs
		api.GET("/queue", h.GetQueue)
		api.GET("/jobs/:kind/:number", h.GetJob)
		api.DELETE("/jobs/:kind/:number", h.CancelJob)

		// History
		api.GET("/history", h.ListHistory)
		api.GET("/history/chain", h.GetChain)
		api.GET("/history/:id", h.GetHistory)
		api.GET("/history/:id/stale", h.GetStale)
		api.DELETE("/history/:id", h.DeleteHistory)
	}
	return wsSrv
}

// corsMiddleware allows every origin when none are configured, else echoes
// allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{cors.New(base)}
}

// originChecker applies the CORS allowlist to WebSocket upgrades. Requests
// without an Origin header (non-browser clients) are accepted.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

// limitBody caps request bodies at maxBytes.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
