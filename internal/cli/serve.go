package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/review-orchestrator/internal/config"
	httpapi "github.com/tbourn/review-orchestrator/internal/http"
	"github.com/tbourn/review-orchestrator/internal/observability"
	"github.com/tbourn/review-orchestrator/internal/provider"
	"github.com/tbourn/review-orchestrator/internal/repo"
	"github.com/tbourn/review-orchestrator/internal/throttle"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long: `Run the orchestrator: REST endpoints under the API base path, the
WebSocket command channel at /ws, and Prometheus metrics at /metrics.

SIGINT or SIGTERM stops accepting connections, cancels running jobs, and
waits up to SHUTDOWN_TIMEOUT for them to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rootOpts.cfg)
		},
	}
}

// loadProfiles reads the profiles file when configured, else builds a single
// default profile from the OpenAI settings.
func loadProfiles(cfg config.ProviderConfig) (*provider.Profiles, error) {
	if cfg.ProfilesPath == "" {
		return provider.DefaultProfiles(cfg.Model, cfg.BaseURL), nil
	}
	return provider.LoadProfiles(cfg.ProfilesPath)
}

// newThrottleStore returns the configured counter store. The returned close
// func is never nil.
func newThrottleStore(cfg config.ThrottleConfig) (throttle.Storage, func() error, error) {
	if cfg.Store != config.ThrottleStoreBadger {
		return throttle.NewMemoryStorage(), func() error { return nil }, nil
	}
	db, err := throttle.OpenBadger(cfg.BadgerPath)
	if err != nil {
		return nil, nil, err
	}
	return throttle.NewBadgerStorage(db), closeBadger(db), nil
}

func closeBadger(db *badger.DB) func() error {
	return func() error { return db.Close() }
}

func serve(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, Version,
		attribute.String("throttle.store", cfg.Throttle.Store))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	profiles, err := loadProfiles(cfg.Provider)
	if err != nil {
		return err
	}

	store, closeStore, err := newThrottleStore(cfg.Throttle)
	if err != nil {
		return err
	}
	guard := throttle.NewGuard(store, throttle.Options{
		Name:          cfg.Throttle.Name,
		Limit:         cfg.Throttle.Limit,
		TTL:           cfg.Throttle.TTL,
		BlockDuration: cfg.Throttle.BlockDuration,
	})

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	orch := httpapi.NewOrchestrator(db, provider.NewDriver(provider.NewOpenAIProvider()), profiles, cfg)
	wsSrv := httpapi.RegisterRoutes(r, orch, guard, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by http.Server.
		wsSrv.Shutdown()
		errs := []error{srv.Shutdown(sctx), orch.Shutdown(sctx), closeStore(), shutdownTracing(sctx)}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
