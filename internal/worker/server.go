package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/vadim/neo-publish/internal/config"
	"github.com/vadim/neo-publish/internal/queue"
)

const shutdownTimeout = 30 * time.Second

// QueueNamer maps logical queues to broker queue names
type QueueNamer interface {
	PhysicalName(n queue.Name) string
}

type consumer struct {
	name   queue.Name
	server *asynq.Server
	mux    *asynq.ServeMux
}

// Server runs one asynq server per queue
type Server struct {
	consumers []consumer
	logger    *slog.Logger
}

// NewServer builds a consumer for every queue. All consumers share one
// token bucket of cfg.RateLimit jobs per second.
func NewServer(redis asynq.RedisConnOpt, names QueueNamer, proc *Processor, cfg config.Worker, logger *slog.Logger) (*Server, error) {
	limiter := NewLimiter(cfg.RateLimit)
	s := &Server{logger: logger}

	for _, n := range queue.Names() {
		handler, err := proc.Handler(n)
		if err != nil {
			return nil, err
		}

		physical := names.PhysicalName(n)
		policy := queue.PolicyFor(n)

		mux := asynq.NewServeMux()
		mux.Use(RateLimit(limiter))
		mux.Handle(string(n), handler)

		srv := asynq.NewServer(redis, asynq.Config{
			Concurrency: Concurrency(cfg, n),
			Queues:      map[string]int{physical: 1},
			RetryDelayFunc: func(retried int, _ error, _ *asynq.Task) time.Duration {
				return policy.Backoff.Delay(retried + 1)
			},
			ErrorHandler:    errorHandler(n, logger),
			Logger:          queue.NewSlogAdapter(logger),
			ShutdownTimeout: shutdownTimeout,
		})

		s.consumers = append(s.consumers, consumer{name: n, server: srv, mux: mux})
	}

	return s, nil
}

// Start starts every consumer. Consumers already started are shut down
// when a later one fails.
func (s *Server) Start() error {
	for i, c := range s.consumers {
		if err := c.server.Start(c.mux); err != nil {
			for _, started := range s.consumers[:i] {
				started.server.Shutdown()
			}
			return fmt.Errorf("starting %s consumer: %w", c.name, err)
		}
		s.logger.Info("queue consumer started", "queue", c.name)
	}
	return nil
}

// Shutdown waits for running jobs up to the shutdown timeout
func (s *Server) Shutdown() {
	for _, c := range s.consumers {
		c.server.Shutdown()
		s.logger.Info("queue consumer stopped", "queue", c.name)
	}
}

// Concurrency returns the configured concurrency of queue n
func Concurrency(cfg config.Worker, n queue.Name) int {
	var c int
	switch n {
	case queue.Publish:
		c = cfg.PublishConcurrency
	case queue.Verify:
		c = cfg.VerifyConcurrency
	case queue.Trend:
		c = cfg.TrendConcurrency
	case queue.Competitor:
		c = cfg.CompetitorConcurrency
	}
	if c <= 0 {
		return 1
	}
	return c
}

// NewLimiter allows perSecond jobs per second; zero or less disables the limit
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RateLimit delays each job until the limiter grants a token
func RateLimit(l *rate.Limiter) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			if err := l.Wait(ctx); err != nil {
				return fmt.Errorf("waiting for rate limiter: %w", err)
			}
			return next.ProcessTask(ctx, t)
		})
	}
}

func errorHandler(n queue.Name, logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		id, _ := asynq.GetTaskID(ctx)

		level := slog.LevelWarn
		if errors.Is(err, asynq.SkipRetry) || retried >= maxRetry {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "job failed",
			"queue", n,
			"job_id", id,
			"attempt", retried+1,
			"max_attempts", maxRetry+1,
			"error", err,
		)
	})
}
