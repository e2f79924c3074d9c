package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Queue is a handle to one logical queue bound to its policy
type Queue struct {
	name     Name
	physical string
	policy   Policy
	broker   Broker
	recorder EnqueueRecorder
}

// AddOption tweaks a single submission
type AddOption func(*addOptions)

type addOptions struct {
	processAt       time.Time
	replaceFinished bool
}

// WithProcessAt delays the job until t
func WithProcessAt(t time.Time) AddOption {
	return func(o *addOptions) {
		o.processAt = t
	}
}

// ReplaceFinished lets a job id be reused once the previous job with that id
// has completed or failed. Live jobs are still deduplicated.
func ReplaceFinished() AddOption {
	return func(o *addOptions) {
		o.replaceFinished = true
	}
}

// Name returns the logical queue name
func (q *Queue) Name() Name {
	return q.name
}

// PhysicalName returns the prefixed name used by the broker
func (q *Queue) PhysicalName() string {
	return q.physical
}

// Policy returns the queue policy
func (q *Queue) Policy() Policy {
	return q.policy
}

// Add submits a job with the given id and JSON payload
func (q *Queue) Add(ctx context.Context, id string, payload any, opts ...AddOption) (*JobHandle, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", q.name, err)
	}

	if o.replaceFinished {
		existing, err := q.broker.Lookup(ctx, q.physical, id)
		if err != nil {
			return nil, fmt.Errorf("%w: looking up job %s: %w", ErrBrokerUnavailable, id, err)
		}
		if existing != nil {
			if !existing.State.Finished() {
				return &JobHandle{ID: id, Queue: q.name, State: existing.State, Duplicate: true}, nil
			}
			if err := q.broker.Remove(ctx, q.physical, id); err != nil {
				return nil, fmt.Errorf("%w: removing finished job %s: %w", ErrBrokerUnavailable, id, err)
			}
		}
	}

	info, err := q.broker.Enqueue(ctx, EnqueueRequest{
		Queue:     q.physical,
		Type:      string(q.name),
		ID:        id,
		Payload:   data,
		Policy:    q.policy,
		ProcessAt: o.processAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enqueueing %s job: %w", ErrBrokerUnavailable, q.name, err)
	}

	if q.recorder != nil {
		q.recorder.JobEnqueued(q.name, info.Duplicate)
	}

	return &JobHandle{
		ID:        info.ID,
		Queue:     q.name,
		State:     info.State,
		Duplicate: info.Duplicate,
	}, nil
}

// Status returns nil when the job no longer exists
func (q *Queue) Status(ctx context.Context, id string) (*JobStatus, error) {
	info, err := q.broker.Lookup(ctx, q.physical, id)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up job %s: %w", ErrBrokerUnavailable, id, err)
	}
	if info == nil {
		return nil, nil
	}
	return q.toStatus(info), nil
}

// Cancel removes a waiting job or interrupts an active one.
// Finished or unknown jobs yield false without an error.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := q.broker.Cancel(ctx, q.physical, id)
	if err != nil {
		return false, fmt.Errorf("%w: cancelling job %s: %w", ErrBrokerUnavailable, id, err)
	}
	return ok, nil
}

// AddRepeatable registers a recurring job following cron
func (q *Queue) AddRepeatable(ctx context.Context, payload any, cron string) (string, error) {
	if cron == "" {
		cron = q.policy.Repeat
	}
	if cron == "" {
		return "", fmt.Errorf("queue %s: cron pattern is required", q.name)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", q.name, err)
	}

	entryID, err := q.broker.Schedule(ctx, EnqueueRequest{
		Queue:   q.physical,
		Type:    string(q.name),
		Payload: data,
		Policy:  q.policy,
	}, cron)
	if err != nil {
		return "", fmt.Errorf("scheduling %s job: %w", q.name, err)
	}
	return entryID, nil
}

// Counts returns job counts by state
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	c, err := q.broker.Counts(ctx, q.physical)
	if err != nil {
		return Counts{}, fmt.Errorf("%w: counting %s jobs: %w", ErrBrokerUnavailable, q.name, err)
	}
	return c, nil
}

// Purge drops every job of the queue
func (q *Queue) Purge(ctx context.Context) error {
	if err := q.broker.Purge(ctx, q.physical); err != nil {
		return fmt.Errorf("purging %s: %w", q.name, err)
	}
	return nil
}

// Trim enforces the retention policy on finished jobs and returns how many were removed
func (q *Queue) Trim(ctx context.Context, now time.Time) (int, error) {
	r := q.policy.Retention
	removed := 0

	n, err := q.trimState(ctx, JobCompleted, now, r.CompletedAge, r.CompletedCount)
	removed += n
	if err != nil {
		return removed, err
	}

	if r.KeepFailed {
		return removed, nil
	}

	n, err = q.trimState(ctx, JobFailed, now, r.FailedAge, r.FailedCount)
	removed += n
	return removed, err
}

func (q *Queue) trimState(ctx context.Context, state JobState, now time.Time, maxAge time.Duration, maxCount int) (int, error) {
	// fetch one page past the cap so overflow is visible
	jobs, err := q.broker.ListFinished(ctx, q.physical, state, maxCount+trimBatch)
	if err != nil {
		return 0, fmt.Errorf("listing %s %s jobs: %w", q.name, state, err)
	}

	removed := 0
	for _, id := range selectExpired(jobs, now, maxAge, maxCount) {
		if err := q.broker.Remove(ctx, q.physical, id); err != nil {
			return removed, fmt.Errorf("removing job %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

const trimBatch = 500

// selectExpired returns ids of jobs older than maxAge or beyond the newest maxCount
func selectExpired(jobs []JobInfo, now time.Time, maxAge time.Duration, maxCount int) []string {
	sorted := make([]JobInfo, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FinishedAt().After(sorted[j].FinishedAt())
	})

	var ids []string
	for i, j := range sorted {
		tooOld := maxAge > 0 && now.Sub(j.FinishedAt()) > maxAge
		overCap := maxCount > 0 && i >= maxCount
		if tooOld || overCap {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

func (q *Queue) toStatus(info *JobInfo) *JobStatus {
	st := &JobStatus{
		ID:           info.ID,
		Queue:        q.name,
		State:        info.State,
		AttemptsMade: info.Retried,
		MaxAttempts:  info.MaxRetry + 1,
		LastError:    info.LastErr,
	}

	if info.State == JobActive || info.State.Finished() {
		// the running attempt counts as made
		st.AttemptsMade = info.Retried + 1
	}

	if len(info.Result) > 0 {
		var res JobResult
		if err := json.Unmarshal(info.Result, &res); err == nil {
			st.Progress = res.Progress
			st.Result = res.Data
		}
	}
	if info.State == JobCompleted {
		st.Progress = 100
	}

	if !info.NextProcessAt.IsZero() && !info.State.Finished() {
		t := info.NextProcessAt
		st.NextProcessAt = &t
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		st.CompletedAt = &t
	}
	if !info.LastFailedAt.IsZero() {
		t := info.LastFailedAt
		st.FailedAt = &t
	}
	return st
}
