package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vadim/neo-publish/internal/queue"
)

// HealthSource reports the state of every queue
type HealthSource interface {
	GetQueueHealth(ctx context.Context) (*queue.Health, error)
}

// HealthObserver receives queue health snapshots
type HealthObserver interface {
	ObserveHealth(h *queue.Health)
}

// Collector periodically refreshes the queue gauges
type Collector struct {
	source   HealthSource
	observer HealthObserver
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewCollector creates a new collector
func NewCollector(source HealthSource, observer HealthObserver, interval time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		source:   source,
		observer: observer,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the collector
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	c.logger.Info("queue metrics collector started", "interval", c.interval)

	c.wg.Add(1)
	go c.run(ctx, stop)
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("queue metrics collector stopped")
}

func (c *Collector) run(ctx context.Context, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Collect takes one health snapshot
func (c *Collector) Collect(ctx context.Context) {
	h, err := c.source.GetQueueHealth(ctx)
	if err != nil {
		c.logger.Warn("failed to collect queue health", "error", err)
		return
	}
	c.observer.ObserveHealth(h)
}
