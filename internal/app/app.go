// Package app wires the gateway's components together and runs the HTTP
// server: config, infrastructure connections, migrations, the domain
// registries, the request pipeline, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/chranama/llm-server-sub001/internal/api"
	"github.com/chranama/llm-server-sub001/internal/auth"
	"github.com/chranama/llm-server-sub001/internal/config"
	"github.com/chranama/llm-server-sub001/internal/httpserver"
	"github.com/chranama/llm-server-sub001/internal/platform"
	"github.com/chranama/llm-server-sub001/internal/telemetry"
	"github.com/chranama/llm-server-sub001/pkg/apikey"
	"github.com/chranama/llm-server-sub001/pkg/backend"
	"github.com/chranama/llm-server-sub001/pkg/cache"
	"github.com/chranama/llm-server-sub001/pkg/concurrency"
	"github.com/chranama/llm-server-sub001/pkg/inferencelog"
	"github.com/chranama/llm-server-sub001/pkg/models"
	"github.com/chranama/llm-server-sub001/pkg/pipeline"
	"github.com/chranama/llm-server-sub001/pkg/quota"
	"github.com/chranama/llm-server-sub001/pkg/ratelimit"
	"github.com/chranama/llm-server-sub001/pkg/schema"
)

// Run reads config, connects to infrastructure, wires every component, and
// serves the HTTP API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Settings) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting gateway", "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisEnabled {
		client, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		rdb = client
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
	} else {
		logger.Info("redis disabled, completion cache runs durable-tier-only")
	}

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	modelRegistry := models.NewRegistry(cfg.ModelID, buildModelSpecs(cfg))
	if err := modelRegistry.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping model registry: %w", err)
	}

	schemaRegistry := schema.NewRegistry(cfg.SchemasDir)

	completionCache := cache.NewCache(rdb, db, 10*time.Minute)

	limiter := ratelimit.NewLimiter()
	go gcLoop(ctx, limiter)

	quotaLedger := quota.NewLedger(db)
	gate := concurrency.NewGate(cfg.MaxConcurrentRequests, logger)

	logCtx, stopLogs := context.WithCancel(context.Background())
	logWriter := inferencelog.NewWriter(db, logger)
	logWriter.Start(logCtx)
	defer logWriter.Close()
	defer stopLogs()

	authr := auth.NewAuthenticator(db)

	pl := &pipeline.Pipeline{
		Deployment:     cfg.DeploymentCapabilities(),
		PolicyPath:     cfg.PolicyDecisionPath,
		BackendTimeout: time.Duration(cfg.ModelBackendTimeout) * time.Second,
		Models:         modelRegistry,
		Schemas:        schemaRegistry,
		Cache:          completionCache,
		Limiter:        limiter,
		Quota:          quotaLedger,
		Gate:           gate,
		Logs:           logWriter,
	}

	srv := httpserver.NewServer(httpserver.Config{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequireModelReady:  cfg.RequireModelReady,
	}, logger, db, rdb, metricsReg, modelRegistry, auth.Middleware(authr, logger))

	domainHandler := api.NewHandler(logger, pl, modelRegistry, schemaRegistry, cfg.DeploymentCapabilities(), cfg.PolicyDecisionPath)
	srv.APIRouter.Mount("/", domainHandler.Routes())

	apikeyHandler := apikey.NewHandler(logger, db)
	srv.APIRouter.Route("/admin/keys", func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Mount("/", apikeyHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildModelSpecs constructs one fake-backend-ready Spec per configured
// model id. The model runtime itself is an external collaborator (spec.md
// §1); this gateway ships the synchronous backend contract and a
// deployment's worth of load-mode wiring around it.
func buildModelSpecs(cfg *config.Settings) []models.Spec {
	specs := make([]models.Spec, 0, len(cfg.AllModelIDs))
	for _, id := range cfg.AllModelIDs {
		specs = append(specs, models.Spec{
			ID:       id,
			Backend:  backend.NewFake(fmt.Sprintf("response from %s", id)),
			LoadMode: cfg.ModelLoadMode,
			Capabilities: map[string]bool{
				"generate": true,
				"extract":  true,
			},
		})
	}
	return specs
}

func gcLoop(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.GC()
		}
	}
}
