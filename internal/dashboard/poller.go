// Package dashboard polls the API for tasks and accounts and renders them
// as a terminal progress view.
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	accountentity "github.com/vadim/neo-publish/internal/domain/account/entity"
	taskentity "github.com/vadim/neo-publish/internal/domain/task/entity"
)

// DefaultInterval is the refresh period after the first load
const DefaultInterval = 5 * time.Second

// State is the load state of the dashboard
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

// Snapshot is what the dashboard shows at one point in time. A failed
// refresh keeps the data of the last successful one.
type Snapshot struct {
	State     State
	Tasks     []taskentity.Task
	Accounts  []accountentity.Account
	Err       error
	UpdatedAt time.Time
}

// Source fetches the data the dashboard displays
type Source interface {
	Tasks(ctx context.Context) ([]taskentity.Task, error)
	Accounts(ctx context.Context) ([]accountentity.Account, error)
}

// Poller drives the idle → loading → loaded/error state machine
type Poller struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	onChange func(Snapshot)
	now      func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval overrides the refresh period
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// OnChange registers fn to be called after every state change
func OnChange(fn func(Snapshot)) Option {
	return func(p *Poller) {
		p.onChange = fn
	}
}

// NewPoller creates an idle poller
func NewPoller(source Source, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		logger:   logger,
		now:      time.Now,
		snap:     Snapshot{State: StateIdle},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loads once, then refreshes every interval until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	p.update(func(s *Snapshot) { s.State = StateLoading })
	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Refresh(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Refresh fetches tasks and accounts together. Either failing moves the
// poller to the error state.
func (p *Poller) Refresh(ctx context.Context) {
	var (
		tasks    []taskentity.Task
		accounts []accountentity.Account
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = p.source.Tasks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = p.source.Accounts(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("dashboard refresh failed", "error", err)
		p.update(func(s *Snapshot) {
			s.State = StateError
			s.Err = err
		})
		return
	}

	p.update(func(s *Snapshot) {
		s.State = StateLoaded
		s.Tasks = tasks
		s.Accounts = accounts
		s.Err = nil
		s.UpdatedAt = p.now()
	})
}

// Snapshot returns the current view
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Poller) update(fn func(*Snapshot)) {
	p.mu.Lock()
	fn(&p.snap)
	snap := p.snap
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(snap)
	}
}
