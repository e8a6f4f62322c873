package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Submission metrics
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cybergym_submissions_total",
			Help: "Total number of PoC submissions by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cybergym_upload_bytes",
			Help:    "Size of accepted PoC uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
	)

	PocRecordsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cybergym_poc_records",
			Help: "Total number of stored PoC records",
		},
	)

	// Container metrics
	ContainerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cybergym_container_runs_total",
			Help: "Total number of PoC container runs by task kind and mode",
		},
		[]string{"kind", "mode"},
	)

	ContainerRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cybergym_container_run_duration_seconds",
			Help: "Wall-clock duration of PoC container runs in seconds",
			// Runs are bounded by the outer wait timeout (30s default),
			// so buckets stretch beyond the default 10s ceiling.
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60, 120},
		},
		[]string{"kind", "mode"},
	)

	ContainerRunTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cybergym_container_run_timeouts_total",
			Help: "Total number of PoC runs killed by the outer wait timeout",
		},
		[]string{"kind", "mode"},
	)

	// Sweep metrics
	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cybergym_verification_sweeps_total",
			Help: "Total number of background verification sweeps",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "cybergym_verification_sweep_duration_seconds",
			Help: "Duration of background verification sweeps in seconds",
			// A sweep may execute many container runs back to back.
			Buckets: []float64{0.01, 0.1, 1, 10, 30, 60, 300, 900, 3600},
		},
	)

	// BuildInfo is a constant 1 labeled with the build version, set
	// once at startup via SetVersion.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cybergym_build_info",
			Help: "Build information, constant 1 labeled by version",
		},
		[]string{"version"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cybergym_api_requests_total",
			Help: "Total number of API requests by path, method and status",
		},
		[]string{"path", "method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cybergym_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(UploadBytes)
	prometheus.MustRegister(PocRecordsTotal)
	prometheus.MustRegister(ContainerRunsTotal)
	prometheus.MustRegister(ContainerRunDuration)
	prometheus.MustRegister(ContainerRunTimeouts)
	prometheus.MustRegister(SweepsTotal)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(BuildInfo)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
