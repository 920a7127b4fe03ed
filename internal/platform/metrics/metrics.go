// Package metrics exposes prometheus collectors for the writing pipeline.
// All recording methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scribe"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsClaimed     *prometheus.CounterVec
	jobsResolved    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	generationCalls *prometheus.CounterVec
	creditsDebited  prometheus.Counter
	statusChanges   *prometheus.CounterVec
	leasesRequeued  prometheus.Counter
	watchdogResumes prometheus.Counter
	eventsPublished *prometheus.CounterVec
}

// New creates the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_claimed_total",
			Help:      "Writing jobs leased by a worker.",
		}, []string{"job_type"}),
		jobsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_resolved_total",
			Help:      "Writing job attempts by outcome.",
		}, []string{"job_type", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of one job attempt including the generation call.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"job_type"}),
		generationCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Calls to the text generation provider by result.",
		}, []string{"operation", "result"}),
		creditsDebited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Credits charged for kept generation results.",
		}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_status_changes_total",
			Help:      "Project writing status transitions by target status.",
		}, []string{"status"}),
		leasesRequeued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leases_requeued_total",
			Help:      "Processing jobs returned to the queue after their lease expired.",
		}),
		watchdogResumes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_resumes_total",
			Help:      "Forced resumes issued by the stall watchdog.",
		}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Progress events published by backend and result.",
		}, []string{"backend", "ok"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// JobClaimed counts a leased job.
func (m *Metrics) JobClaimed(jobType string) {
	if m == nil {
		return
	}
	m.jobsClaimed.WithLabelValues(jobType).Inc()
}

// JobResolved records the outcome and duration of one job attempt.
func (m *Metrics) JobResolved(jobType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsResolved.WithLabelValues(jobType, outcome).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// GenerationCall counts a provider call.
func (m *Metrics) GenerationCall(operation, result string) {
	if m == nil {
		return
	}
	m.generationCalls.WithLabelValues(operation, result).Inc()
}

// CreditsDebited adds n charged credits.
func (m *Metrics) CreditsDebited(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.creditsDebited.Add(float64(n))
}

// StatusChanged counts a project transition into status.
func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// LeasesRequeued adds n requeued jobs.
func (m *Metrics) LeasesRequeued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.leasesRequeued.Add(float64(n))
}

// WatchdogResume counts a forced resume.
func (m *Metrics) WatchdogResume() {
	if m == nil {
		return
	}
	m.watchdogResumes.Inc()
}

// EventPublished counts a publish attempt on backend.
func (m *Metrics) EventPublished(backend string, ok bool) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(backend, strconv.FormatBool(ok)).Inc()
}
