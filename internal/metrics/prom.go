// Package metrics exposes pipeline counters and queue gauges to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	taskentity "github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

const namespace = "neopublish"

// PromMetrics implements the recorder interfaces of the queue, janitor,
// task policy and worker packages
type PromMetrics struct {
	jobsEnqueued  *prometheus.CounterVec
	jobsTrimmed   *prometheus.CounterVec
	tasksCreated  prometheus.Counter
	jobsCreated   prometheus.Counter
	jobsResolved  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	queueJobs     *prometheus.GaugeVec
	queueHealthy  *prometheus.GaugeVec
}

// NewPromMetrics registers every collector on reg
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Number of job submissions, by queue and whether the job already existed",
		}, []string{"queue", "duplicate"}),
		jobsTrimmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_trimmed_total",
			Help:      "Number of finished jobs removed by the retention janitor",
		}, []string{"queue"}),
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Number of publish tasks created",
		}),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_created_total",
			Help:      "Number of publish jobs created for new tasks",
		}),
		jobsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_resolved_total",
			Help:      "Number of publish jobs that reached an outcome",
		}, []string{"platform", "outcome"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Number of publish tasks that reached a terminal status",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent processing one job attempt",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue", "outcome"}),
		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Jobs held by the broker, by queue and state",
		}, []string{"queue", "state"}),
		queueHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_healthy",
			Help:      "1 when the queue backlog is below the health thresholds",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.jobsEnqueued,
		m.jobsTrimmed,
		m.tasksCreated,
		m.jobsCreated,
		m.jobsResolved,
		m.tasksFinished,
		m.jobDuration,
		m.queueJobs,
		m.queueHealthy,
	)
	return m
}

func (m *PromMetrics) JobEnqueued(n queue.Name, duplicate bool) {
	dup := "false"
	if duplicate {
		dup = "true"
	}
	m.jobsEnqueued.WithLabelValues(string(n), dup).Inc()
}

func (m *PromMetrics) JobsTrimmed(n queue.Name, count int) {
	m.jobsTrimmed.WithLabelValues(string(n)).Add(float64(count))
}

func (m *PromMetrics) TaskCreated(jobs int) {
	m.tasksCreated.Inc()
	m.jobsCreated.Add(float64(jobs))
}

func (m *PromMetrics) JobResolved(p platform.Platform, success bool) {
	m.jobsResolved.WithLabelValues(string(p), outcome(success)).Inc()
}

func (m *PromMetrics) TaskFinished(status taskentity.Status) {
	m.tasksFinished.WithLabelValues(string(status)).Inc()
}

// JobProcessed observes one handler run
func (m *PromMetrics) JobProcessed(n queue.Name, d time.Duration, err error) {
	m.jobDuration.WithLabelValues(string(n), outcome(err == nil)).Observe(d.Seconds())
}

// ObserveHealth copies a health snapshot into the queue gauges
func (m *PromMetrics) ObserveHealth(h *queue.Health) {
	for _, q := range h.Queues {
		name := string(q.Name)
		m.queueJobs.WithLabelValues(name, string(queue.JobWaiting)).Set(float64(q.Waiting))
		m.queueJobs.WithLabelValues(name, string(queue.JobActive)).Set(float64(q.Active))
		m.queueJobs.WithLabelValues(name, string(queue.JobDelayed)).Set(float64(q.Delayed))
		m.queueJobs.WithLabelValues(name, string(queue.JobCompleted)).Set(float64(q.Completed))
		m.queueJobs.WithLabelValues(name, string(queue.JobFailed)).Set(float64(q.Failed))

		healthy := 0.0
		if q.IsHealthy {
			healthy = 1
		}
		m.queueHealthy.WithLabelValues(name).Set(healthy)
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
