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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadim/neo-publish/internal/config"
	"github.com/vadim/neo-publish/internal/metrics"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
	"github.com/vadim/neo-publish/internal/queue/janitor"
	"github.com/vadim/neo-publish/internal/redis"
	"github.com/vadim/neo-publish/internal/worker"
)

// Worker is the consumer process: queue servers, the trend schedule,
// the retention janitor and the queue gauges
type Worker struct {
	cfg    config.Config
	logger *slog.Logger

	infra *infrastructure

	server        *worker.Server
	janitor       *janitor.Janitor
	collector     *metrics.Collector
	metricsServer *http.Server
}

// NewWorker creates and initializes the worker process
func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	logger := newLogger(cfg.Log)

	infra, err := newInfrastructure(ctx, cfg, logger, false)
	if err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	d, err := newDomains(cfg, infra, logger)
	if err != nil {
		infra.close(logger)
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	adapters := platform.NewRegistry(func(p platform.Platform) platform.Adapter {
		return platform.NewSimulated(p,
			platform.WithSuccessRates(cfg.Worker.PublishSuccessRate, cfg.Worker.CookieValidRate),
			platform.WithLatency(cfg.Worker.MinLatency, cfg.Worker.MaxLatency),
		)
	})

	proc := worker.NewProcessor(d.tasks, d.accounts, d.analytics, adapters, logger.With("component", "worker"),
		worker.WithRecorder(infra.metrics),
	)

	server, err := worker.NewServer(redis.AsynqOpt(cfg.Redis), infra.queues.Registry(), proc, cfg.Worker, logger)
	if err != nil {
		infra.close(logger)
		return nil, fmt.Errorf("creating worker server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(infra.promReg, promhttp.HandlerOpts{}))

	return &Worker{
		cfg:    cfg,
		logger: logger,
		infra:  infra,
		server: server,
		janitor: janitor.New(infra.queues.Registry(), cfg.Queue.JanitorInterval, logger.With("component", "janitor"),
			janitor.WithRecorder(infra.metrics),
		),
		collector: metrics.NewCollector(infra.queues, infra.metrics, cfg.Queue.MetricsInterval, logger.With("component", "collector")),
		metricsServer: &http.Server{
			Addr:              cfg.Worker.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run starts consuming and blocks until shutdown signal
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(); err != nil {
		w.infra.close(w.logger)
		return fmt.Errorf("starting queue servers: %w", err)
	}

	if err := w.scheduleTrends(ctx); err != nil {
		w.logger.Error("failed to schedule trend collection", "error", err)
	}

	w.janitor.Start(ctx)
	w.collector.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("starting metrics server", "addr", w.cfg.Worker.MetricsAddr)
		if err := w.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		w.logger.Error("metrics server failed", "error", err)
	case sig := <-quit:
		w.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		w.logger.Info("context cancelled")
	}

	return w.Shutdown(context.Background())
}

// scheduleTrends registers one repeatable trend job per platform and
// configured keyword. Without keywords each platform gets one general job.
func (w *Worker) scheduleTrends(ctx context.Context) error {
	keywords := w.cfg.Worker.Keywords()
	if len(keywords) == 0 {
		keywords = []string{""}
	}

	for _, p := range platform.All() {
		for _, kw := range keywords {
			id, err := w.infra.queues.AddRepeatableJob(ctx, queue.Trend, queue.TrendJobData{
				Platform: p,
				Keyword:  kw,
			}, w.cfg.Worker.TrendCron)
			if err != nil {
				return fmt.Errorf("scheduling %s trends: %w", p, err)
			}
			w.logger.Info("trend collection scheduled", "platform", p, "keyword", kw, "cron", w.cfg.Worker.TrendCron, "entry_id", id)
		}
	}
	return nil
}

// Shutdown stops consuming, lets running jobs finish and closes connections
func (w *Worker) Shutdown(ctx context.Context) error {
	w.logger.Info("shutting down...")

	w.collector.Stop()
	w.janitor.Stop()
	w.server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := w.metricsServer.Shutdown(shutdownCtx)

	w.infra.close(w.logger)
	if err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}

	w.logger.Info("shutdown complete")
	return nil
}
