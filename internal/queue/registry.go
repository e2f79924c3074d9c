package queue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistryClosed is returned when a queue is requested after Close
var ErrRegistryClosed = errors.New("queue registry is closed")

// EnqueueRecorder observes job submissions
type EnqueueRecorder interface {
	JobEnqueued(queue Name, duplicate bool)
}

// Registry owns the broker connection and hands out per-queue handles.
// Handles are created on first use and cached; Close tears everything down once.
type Registry struct {
	broker   Broker
	prefix   string
	recorder EnqueueRecorder

	mu     sync.Mutex
	queues map[Name]*Queue
	closed bool
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithPrefix namespaces every physical queue name
func WithPrefix(prefix string) RegistryOption {
	return func(r *Registry) {
		r.prefix = prefix
	}
}

// WithRecorder attaches an enqueue observer to every queue
func WithRecorder(rec EnqueueRecorder) RegistryOption {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// NewRegistry creates a registry on top of broker
func NewRegistry(broker Broker, opts ...RegistryOption) *Registry {
	r := &Registry{
		broker: broker,
		queues: make(map[Name]*Queue),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Queue returns the handle for n, creating it on first use
func (r *Registry) Queue(n Name) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if q, ok := r.queues[n]; ok {
		return q, nil
	}

	switch n {
	case Publish, Verify, Trend, Competitor:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, n)
	}

	q := &Queue{
		name:     n,
		physical: r.PhysicalName(n),
		policy:   PolicyFor(n),
		broker:   r.broker,
		recorder: r.recorder,
	}
	r.queues[n] = q
	return q, nil
}

// PhysicalName returns the broker-level name of n
func (r *Registry) PhysicalName(n Name) string {
	if r.prefix == "" {
		return string(n)
	}
	return r.prefix + ":" + string(n)
}

// Close releases the broker. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.queues = make(map[Name]*Queue)

	if err := r.broker.Close(); err != nil {
		return fmt.Errorf("closing broker: %w", err)
	}
	return nil
}
