// Package jobmetrics instruments the asynq handlers.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	findings    *prometheus.CounterVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer shares
// one instance on the default registry, since collectors register only once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Tracker times one run of a job.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, start: m.clock()}
}

// End records the run and returns err unchanged, so handlers can write
// `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.job == "" {
		return err
	}
	finished := t.m.clock()
	t.m.duration.WithLabelValues(t.job).Observe(finished.Sub(t.start).Seconds())
	if err != nil {
		t.m.runs.WithLabelValues(t.job, statusFailure).Inc()
		t.m.failures.WithLabelValues(t.job).Inc()
		return err
	}
	t.m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	t.m.lastSuccess.WithLabelValues(t.job).Set(float64(finished.Unix()))
	return nil
}

// AddFindings adds count reconciliation findings of category.
func (m *Metrics) AddFindings(category string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.findings.WithLabelValues(category).Add(float64(count))
}

func (m *Metrics) clock() time.Time {
	if m == nil || m.now == nil {
		return time.Now()
	}
	return m.now()
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Job runs by job name and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_failures_total",
			Help: "Failed job runs by job name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_reconcile_findings_total",
			Help: "Stock and ledger discrepancies reported by reconciliation runs.",
		}, []string{"category"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.findings)
	return m
}
