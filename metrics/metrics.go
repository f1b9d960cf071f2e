// Package metrics provides the Prometheus collectors of the viewer server and
// the pipeline. HTTP collectors:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Pipeline collectors are updated at the end of every build run. Everything
// is registered with the Prometheus default registry during package initialization.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Number of client buckets held by the rate limiter",
		},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "Duration of complete pipeline runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// PipelineRecords holds the counters of the last successful run, by kind
	PipelineRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_records",
			Help: "Counters of the last successful pipeline run",
		},
		[]string{"kind"},
	)

	PipelineLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(PipelineRecords)
	prometheus.MustRegister(PipelineLastSuccess)
}

// ObservePipeline records a finished run. counts is only applied on success.
func ObservePipeline(duration time.Duration, counts map[string]int, err error) {
	if err != nil {
		PipelineRunsTotal.WithLabelValues("failure").Inc()
		return
	}

	PipelineRunsTotal.WithLabelValues("success").Inc()
	PipelineDuration.Observe(duration.Seconds())
	for kind, n := range counts {
		PipelineRecords.WithLabelValues(kind).Set(float64(n))
	}
	PipelineLastSuccess.Set(float64(time.Now().Unix()))
}
