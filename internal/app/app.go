package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadim/neo-publish/internal/config"
	httpcontroller "github.com/vadim/neo-publish/internal/controller/http"
	analysispolicy "github.com/vadim/neo-publish/internal/domain/analysis/policy"
	"github.com/vadim/neo-publish/internal/domain/analysis/provider"
	"github.com/vadim/neo-publish/internal/httpx/middleware"
	"github.com/vadim/neo-publish/internal/httpx/response"
	"github.com/vadim/neo-publish/internal/redis"
	"github.com/vadim/neo-publish/internal/storage"
)

// App is the API process: the task producer and every HTTP endpoint
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	infra   *infrastructure
	domains *domains

	analysisPolicy *analysispolicy.Policy
	storage        *storage.S3Storage
	auth           *middleware.Authenticator
	limiter        *redis.RateLimiter
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger := newLogger(cfg.Log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(chimw.Timeout(30 * time.Second))

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	if err := app.initDomains(); err != nil {
		app.infra.close(logger)
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	if err := app.registerRoutes(); err != nil {
		app.infra.close(logger)
		return nil, fmt.Errorf("registering routes: %w", err)
	}

	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure connects Postgres, Redis, the job broker and S3
func (a *App) initInfrastructure(ctx context.Context) error {
	if a.cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	infra, err := newInfrastructure(ctx, a.cfg, a.logger, true)
	if err != nil {
		return err
	}
	a.infra = infra

	a.storage = storage.NewS3Storage(a.cfg.S3)
	a.auth = middleware.NewAuthenticator(a.cfg.Auth.JWTSecret)
	a.limiter = redis.NewRateLimiter(infra.redis, "ratelimit:tasks")

	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *App) initDomains() error {
	d, err := newDomains(a.cfg, a.infra, a.logger)
	if err != nil {
		return err
	}
	a.domains = d

	callers := provider.NewCallers(a.cfg.AI)
	models := make([]analysispolicy.Model, len(callers))
	for i, c := range callers {
		models[i] = c
	}
	a.analysisPolicy = analysispolicy.New(models, a.logger.With("domain", "analysis"),
		analysispolicy.WithCache(redis.NewJSONCache(a.infra.redis, "analysis", a.cfg.AI.CacheTTL)),
	)

	return nil
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() error {
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)
	a.router.Handle("/metrics", promhttp.HandlerFor(a.infra.promReg, promhttp.HandlerOpts{}))

	swaggerHandler, err := httpcontroller.NewSwaggerHandler("Neo-Publish API", OpenAPISpec)
	if err != nil {
		return err
	}
	swaggerHandler.RegisterRoutes(a.router)

	createLimit := middleware.RateLimit(a.limiter, a.cfg.Auth.TaskCreateLimit, time.Minute, a.logger)

	a.router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.auth.Authenticate)

		httpcontroller.NewTaskHandler(a.domains.tasks, createLimit).RegisterRoutes(r)
		httpcontroller.NewAccountHandler(a.domains.accounts, a.logger).RegisterRoutes(r)
		httpcontroller.NewAnalyticsHandler(a.domains.analytics, a.logger).RegisterRoutes(r)
		httpcontroller.NewAnalysisHandler(a.analysisPolicy).RegisterRoutes(r)
		httpcontroller.NewQueueHandler(a.infra.queues).RegisterRoutes(r)
		httpcontroller.NewMediaHandler(a.storage, a.logger).RegisterRoutes(r)
	})

	return nil
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "ok"})
}

// readyHandler reports whether Postgres, Redis and the media bucket answer
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := a.infra.ready(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		response.ServiceUnavailable(w, err.Error())
		return
	}
	if err := a.storage.Ping(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		response.ServiceUnavailable(w, "storage unavailable")
		return
	}

	response.OK(w, map[string]string{"status": "ready"})
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.infra.close(a.logger)
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	a.infra.close(a.logger)
	if err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
