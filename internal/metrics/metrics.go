// Package metrics exposes job, engine and geometry metrics for Prometheus.
//
// Metrics:
//
//	pdf2zh_jobs_created_total{kind}
//	pdf2zh_jobs_finished_total{kind,status}
//	pdf2zh_jobs_active
//	pdf2zh_job_duration_seconds{kind}
//	pdf2zh_engine_runs_total{engine,outcome}
//	pdf2zh_engine_retries_total{engine}
//	pdf2zh_geometry_duration_seconds{op}
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdf2zh-server/internal/jobs"
)

const namespace = "pdf2zh"

// Collector holds the server metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	jobsCreated  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobsActive   prometheus.Gauge
	jobDuration  *prometheus.HistogramVec

	engineRuns    *prometheus.CounterVec
	engineRetries *prometheus.CounterVec
	geometry      *prometheus.HistogramVec
}

// NewCollector creates and registers all metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Total number of jobs submitted",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal status",
		}, []string{"kind", "status"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Jobs currently pending or processing",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from submission to completion",
			// translations take minutes
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"kind"}),
		engineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_runs_total",
			Help:      "Engine invocations by outcome",
		}, []string{"engine", "outcome"}),
		engineRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_retries_total",
			Help:      "Engine runs retried with font subsetting disabled",
		}, []string{"engine"}),
		geometry: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geometry_duration_seconds",
			Help:      "Duration of page geometry transforms",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	c.registry.MustRegister(
		c.jobsCreated,
		c.jobsFinished,
		c.jobsActive,
		c.jobDuration,
		c.engineRuns,
		c.engineRetries,
		c.geometry,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveJob is a registry observer. It counts a job when it is created and
// when it finishes; intermediate updates are ignored.
func (c *Collector) ObserveJob(j jobs.Job) {
	switch {
	case j.Status == jobs.StatusPending:
		c.jobsCreated.WithLabelValues(j.Kind).Inc()
		c.jobsActive.Inc()
	case j.Status.Terminal():
		c.jobsFinished.WithLabelValues(j.Kind, string(j.Status)).Inc()
		c.jobsActive.Dec()
		if j.CompletedAt != nil {
			c.jobDuration.WithLabelValues(j.Kind).Observe(j.CompletedAt.Sub(j.CreatedAt).Seconds())
		}
	}
}

// RecordEngineRun counts one engine invocation; outcome is "success" or "failure"
func (c *Collector) RecordEngineRun(engine, outcome string) {
	c.engineRuns.WithLabelValues(engine, outcome).Inc()
}

// RecordEngineRetry counts a retry
func (c *Collector) RecordEngineRetry(engine string) {
	c.engineRetries.WithLabelValues(engine).Inc()
}

// ObserveGeometry records how long a transform took
func (c *Collector) ObserveGeometry(op string, d time.Duration) {
	c.geometry.WithLabelValues(op).Observe(d.Seconds())
}

// Handler serves the metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
