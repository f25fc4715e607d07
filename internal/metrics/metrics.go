// ============================================================================
// Producer Agent Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: collect and expose the producer agent's runtime metrics
// for Prometheus scraping.
//
// Metrics follow the RED method (Rate, Errors, Duration):
//
//   1. Counters — monotonic totals:
//      - producer_config_fetch_total{result}: config watch attempts,
//        labeled "success" or "failure"
//      - producer_jobs_started_total: jobs admitted by the Job Loop
//      - producer_jobs_timeout_total: jobs whose batch timed out
//      - producer_dispatch_failures_total{target}: dispatch failures,
//        labeled "soi" or "control_plane"
//
//   2. Histograms — distributions:
//      - producer_job_duration_seconds: acquisition-to-teardown
//        latency of one job
//
//   3. Gauges — instantaneous state:
//      - producer_watch_backoff_seconds: current Config Watcher tick
//        interval (rises under repeated failures, falls back to
//        baseline on success)
//
// HTTP endpoint: /metrics, scraped by Prometheus in text format.
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the producer agent's Prometheus metrics collector.
type Collector struct {
	configFetchTotal *prometheus.CounterVec
	jobsStartedTotal prometheus.Counter
	jobsTimeoutTotal prometheus.Counter
	dispatchFailures *prometheus.CounterVec
	jobDuration      prometheus.Histogram
	watchBackoff     prometheus.Gauge
}

// NewCollector creates and registers the producer agent's metrics.
func NewCollector() *Collector {
	c := &Collector{
		configFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "producer_config_fetch_total",
			Help: "Total number of config watch fetches, labeled by result",
		}, []string{"result"}),
		jobsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_jobs_started_total",
			Help: "Total number of jobs admitted by the job loop",
		}),
		jobsTimeoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_jobs_timeout_total",
			Help: "Total number of jobs whose batch collection timed out",
		}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "producer_dispatch_failures_total",
			Help: "Total number of per-bucket dispatch failures, labeled by target",
		}, []string{"target"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "producer_job_duration_seconds",
			Help:    "Acquisition-to-teardown latency of one job",
			Buckets: prometheus.DefBuckets,
		}),
		watchBackoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "producer_watch_backoff_seconds",
			Help: "Current config watcher tick interval in seconds",
		}),
	}

	prometheus.MustRegister(c.configFetchTotal)
	prometheus.MustRegister(c.jobsStartedTotal)
	prometheus.MustRegister(c.jobsTimeoutTotal)
	prometheus.MustRegister(c.dispatchFailures)
	prometheus.MustRegister(c.jobDuration)
	prometheus.MustRegister(c.watchBackoff)

	return c
}

// RecordConfigFetch records the outcome of one Config Watcher tick.
func (c *Collector) RecordConfigFetch(success bool) {
	if success {
		c.configFetchTotal.WithLabelValues("success").Inc()
		return
	}
	c.configFetchTotal.WithLabelValues("failure").Inc()
}

// RecordJobStarted records one job admitted by the Job Loop.
func (c *Collector) RecordJobStarted() {
	c.jobsStartedTotal.Inc()
}

// RecordJobTimeout records one job whose batch collection timed out.
func (c *Collector) RecordJobTimeout() {
	c.jobsTimeoutTotal.Inc()
}

// RecordJobDuration records the wall-clock time from acquisition to
// teardown for one job.
func (c *Collector) RecordJobDuration(seconds float64) {
	c.jobDuration.Observe(seconds)
}

// RecordDispatchFailure records one bucket's failure to report to the
// given target ("soi" or "control_plane").
func (c *Collector) RecordDispatchFailure(target string) {
	c.dispatchFailures.WithLabelValues(target).Inc()
}

// SetWatchBackoff records the config watcher's current tick interval.
func (c *Collector) SetWatchBackoff(seconds float64) {
	c.watchBackoff.Set(seconds)
}

// StartServer starts the Prometheus metrics HTTP server on port.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
