package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vadim/neo-publish/internal/queue"
)

// QueueSource hands out queue handles
type QueueSource interface {
	Queue(n queue.Name) (*queue.Queue, error)
}

// TrimRecorder observes how many jobs a sweep removed
type TrimRecorder interface {
	JobsTrimmed(n queue.Name, count int)
}

// Janitor periodically enforces the retention policy of every queue
type Janitor struct {
	queues   QueueSource
	interval time.Duration
	logger   *slog.Logger
	recorder TrimRecorder
	now      func() time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// Option configures a Janitor
type Option func(*Janitor)

// WithRecorder reports removed job counts
func WithRecorder(rec TrimRecorder) Option {
	return func(j *Janitor) {
		j.recorder = rec
	}
}

// New creates a new janitor
func New(queues QueueSource, interval time.Duration, logger *slog.Logger, opts ...Option) *Janitor {
	j := &Janitor{
		queues:   queues,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start starts the janitor
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	stop := j.stopCh
	j.mu.Unlock()

	j.logger.Info("queue janitor started", "interval", j.interval)

	j.wg.Add(1)
	go j.run(ctx, stop)
}

// Stop stops the janitor
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("queue janitor stopped")
}

func (j *Janitor) run(ctx context.Context, stop <-chan struct{}) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.Sweep(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep trims every queue once. Failures are logged and do not stop the sweep.
func (j *Janitor) Sweep(ctx context.Context) int {
	total := 0
	now := j.now()

	for _, n := range queue.Names() {
		q, err := j.queues.Queue(n)
		if err != nil {
			j.logger.Error("failed to get queue", "queue", n, "error", err)
			continue
		}

		removed, err := q.Trim(ctx, now)
		if err != nil {
			j.logger.Error("failed to trim queue", "queue", n, "error", err)
		}
		if removed > 0 {
			j.logger.Debug("trimmed finished jobs", "queue", n, "removed", removed)
			if j.recorder != nil {
				j.recorder.JobsTrimmed(n, removed)
			}
		}
		total += removed
	}

	return total
}
