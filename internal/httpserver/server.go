package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// ReadinessChecker reports whether the model registry has a loaded model
// bound, for the /readyz and /modelz endpoints. Implemented by the model
// registry (C3); kept as an interface here to avoid an import cycle between
// the HTTP shell and the domain packages.
type ReadinessChecker interface {
	Ready() bool
	Status() map[string]any
}

// Server holds the HTTP server dependencies and the global middleware chain.
// It mirrors the teacher's httpserver.Server shape, generalized to a
// single-tenant, API-key-authenticated deployment.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // authenticated /v1 sub-router
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client // nil when Redis is disabled
	Metrics   *prometheus.Registry

	requireModelReady bool
	models            ReadinessChecker
	startedAt         time.Time
}

// Config holds the parameters NewServer needs, decoupled from the full
// Settings struct so the HTTP shell doesn't depend on every deployment knob.
type Config struct {
	CORSAllowedOrigins []string
	RequireModelReady  bool
}

// NewServer creates an HTTP server with global middleware and the
// unauthenticated health/ready/modelz/metrics endpoints. Domain handlers are
// mounted on APIRouter (an authenticated /v1 group) and Router (for
// additional unauthenticated routes) by the caller.
func NewServer(cfg Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, models ReadinessChecker, authMiddleware func(http.Handler) http.Handler) *Server {
	s := &Server{
		Router:            chi.NewRouter(),
		Logger:            logger,
		DB:                db,
		Redis:             rdb,
		Metrics:           metricsReg,
		requireModelReady: cfg.RequireModelReady,
		models:            models,
		startedAt:         time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/modelz", s.handleModelz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware)
		s.APIRouter = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleReadyz reports DB, cache, and — if require_model_ready is set — model
// load readiness. Spec §6: 200 when every required check passes, else 503.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var checks []checkResult
	allOK := true

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		checks = append(checks, checkResult{Name: "database", Status: "fail", Error: err.Error()})
		allOK = false
	} else {
		checks = append(checks, checkResult{Name: "database", Status: "ok"})
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			checks = append(checks, checkResult{Name: "redis", Status: "fail", Error: err.Error()})
			allOK = false
		} else {
			checks = append(checks, checkResult{Name: "redis", Status: "ok"})
		}
	} else {
		checks = append(checks, checkResult{Name: "redis", Status: "disabled"})
	}

	if s.requireModelReady {
		if s.models.Ready() {
			checks = append(checks, checkResult{Name: "model", Status: "ok"})
		} else {
			checks = append(checks, checkResult{Name: "model", Status: "fail", Error: "no model loaded"})
			allOK = false
		}
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	}

	Respond(w, httpStatus, map[string]any{"status": status, "checks": checks})
}

// handleModelz reports model-loading readiness specifically, independent of
// DB/Redis health.
func (s *Server) handleModelz(w http.ResponseWriter, _ *http.Request) {
	status := s.models.Status()
	httpStatus := http.StatusOK
	if s.requireModelReady && !s.models.Ready() {
		httpStatus = http.StatusServiceUnavailable
	}
	Respond(w, httpStatus, status)
}
