package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vadim/neo-publish/internal/config"
	"github.com/vadim/neo-publish/internal/database"
	accountdao "github.com/vadim/neo-publish/internal/domain/account/dao"
	accountpolicy "github.com/vadim/neo-publish/internal/domain/account/policy"
	analyticsdao "github.com/vadim/neo-publish/internal/domain/analytics/dao"
	analyticspolicy "github.com/vadim/neo-publish/internal/domain/analytics/policy"
	taskdao "github.com/vadim/neo-publish/internal/domain/task/dao"
	taskpolicy "github.com/vadim/neo-publish/internal/domain/task/policy"
	taskservice "github.com/vadim/neo-publish/internal/domain/task/service"
	"github.com/vadim/neo-publish/internal/metrics"
	"github.com/vadim/neo-publish/internal/queue"
	"github.com/vadim/neo-publish/internal/redis"
	"github.com/vadim/neo-publish/internal/seal"
)

// newLogger builds the process logger and makes it the slog default
func newLogger(cfg config.Log) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

// infrastructure holds the connections shared by the api and the worker
type infrastructure struct {
	pool    *pgxpool.Pool
	redis   *goredis.Client
	queues  *queue.Client
	metrics *metrics.PromMetrics
	promReg *prometheus.Registry
}

func newInfrastructure(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*infrastructure, error) {
	infra := &infrastructure{promReg: prometheus.NewRegistry()}
	infra.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	infra.metrics = metrics.NewPromMetrics(infra.promReg)

	pool, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	infra.pool = pool

	if migrate && cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			infra.close(logger)
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		infra.close(logger)
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	infra.redis = rdb

	broker := queue.NewAsynqBroker(redis.AsynqOpt(cfg.Redis), logger)
	reg := queue.NewRegistry(broker,
		queue.WithPrefix(cfg.Queue.Prefix),
		queue.WithRecorder(infra.metrics),
	)
	infra.queues = queue.NewClient(reg)

	return infra, nil
}

// ready checks every backing service
func (i *infrastructure) ready(ctx context.Context) error {
	if err := i.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := i.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (i *infrastructure) close(logger *slog.Logger) {
	var errs []error
	if i.queues != nil {
		errs = append(errs, i.queues.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	}
	if i.pool != nil {
		i.pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("closing infrastructure", "error", err)
	}
}

// domains holds the policies both processes drive
type domains struct {
	accounts  *accountpolicy.Policy
	tasks     *taskpolicy.Policy
	analytics *analyticspolicy.Policy
}

func newDomains(cfg config.Config, infra *infrastructure, logger *slog.Logger) (*domains, error) {
	box, err := seal.NewBox(cfg.Auth.CookieSecret)
	if err != nil {
		return nil, fmt.Errorf("loading COOKIE_SECRET: %w", err)
	}

	accounts := accountpolicy.New(
		accountdao.NewAccountPostgres(infra.pool),
		infra.queues,
		box,
		logger.With("domain", "account"),
	)

	svc := taskservice.New(
		taskdao.NewTaskPostgres(infra.pool),
		taskdao.NewJobPostgres(infra.pool),
		taskdao.NewLogPostgres(infra.pool),
	)
	tasks := taskpolicy.New(svc, accounts, infra.queues, logger.With("domain", "task"),
		taskpolicy.WithRecorder(infra.metrics),
	)

	analytics := analyticspolicy.New(
		analyticsdao.NewAnalyticsPostgres(infra.pool),
		infra.queues,
		logger.With("domain", "analytics"),
	)

	return &domains{accounts: accounts, tasks: tasks, analytics: analytics}, nil
}
