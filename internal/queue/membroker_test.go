package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memBroker is an in-memory Broker used by the tests of this package
type memBroker struct {
	mu        sync.Mutex
	jobs      map[string]map[string]*JobInfo
	schedules []scheduledEntry
	counts    map[string]Counts
	closed    int
	failWith  error
}

type scheduledEntry struct {
	req  EnqueueRequest
	cron string
}

func newMemBroker() *memBroker {
	return &memBroker{
		jobs:   make(map[string]map[string]*JobInfo),
		counts: make(map[string]Counts),
	}
}

func (m *memBroker) Enqueue(_ context.Context, req EnqueueRequest) (*JobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	q := m.jobs[req.Queue]
	if q == nil {
		q = make(map[string]*JobInfo)
		m.jobs[req.Queue] = q
	}

	if existing, ok := q[req.ID]; ok {
		cp := *existing
		cp.Duplicate = true
		return &cp, nil
	}

	state := JobWaiting
	if !req.ProcessAt.IsZero() {
		state = JobDelayed
	}
	info := &JobInfo{
		ID:            req.ID,
		Queue:         req.Queue,
		Type:          req.Type,
		State:         state,
		MaxRetry:      req.Policy.MaxRetry(),
		NextProcessAt: req.ProcessAt,
		Result:        nil,
	}
	q[req.ID] = info
	cp := *info
	return &cp, nil
}

func (m *memBroker) Lookup(_ context.Context, queue, id string) (*JobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}
	info, ok := m.jobs[queue][id]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

func (m *memBroker) Cancel(_ context.Context, queue, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return false, m.failWith
	}
	info, ok := m.jobs[queue][id]
	if !ok {
		return false, nil
	}
	switch info.State {
	case JobWaiting, JobDelayed, JobActive:
		delete(m.jobs[queue], id)
		return true, nil
	}
	return false, nil
}

func (m *memBroker) Remove(_ context.Context, queue, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.jobs[queue][id]; ok && info.State == JobActive {
		return errors.New("job is active")
	}
	delete(m.jobs[queue], id)
	return nil
}

func (m *memBroker) ListFinished(_ context.Context, queue string, state JobState, limit int) ([]JobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []JobInfo
	for _, j := range m.jobs[queue] {
		if j.State == state && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memBroker) Counts(_ context.Context, queue string) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return Counts{}, m.failWith
	}
	if c, ok := m.counts[queue]; ok {
		return c, nil
	}

	var c Counts
	for _, j := range m.jobs[queue] {
		switch j.State {
		case JobWaiting:
			c.Waiting++
		case JobActive:
			c.Active++
		case JobDelayed:
			c.Delayed++
		case JobCompleted:
			c.Completed++
		case JobFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (m *memBroker) Schedule(_ context.Context, req EnqueueRequest, cron string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.schedules = append(m.schedules, scheduledEntry{req: req, cron: cron})
	return "entry-" + req.Type, nil
}

func (m *memBroker) Purge(_ context.Context, queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.jobs, queue)
	return nil
}

func (m *memBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed++
	return nil
}

// setState moves a stored job to another state, as a worker would
func (m *memBroker) setState(queue, id string, state JobState, finishedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.jobs[queue][id]
	j.State = state
	switch state {
	case JobCompleted:
		j.CompletedAt = finishedAt
	case JobFailed:
		j.LastFailedAt = finishedAt
	}
}

func (m *memBroker) size(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.jobs[queue])
}
