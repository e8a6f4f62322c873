/*
Package metrics provides Prometheus metrics and health checking for the
PoC server.

The package exposes submission, container-run, and API metrics from a
process-global registry, plus a component health registry backing the
/health and /ready endpoints.

# Architecture

	┌──────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐          │
	│  │       Package-Level Collectors            │          │
	│  │  - Registered once in init()              │          │
	│  │  - Updated inline by api/runtime/manager  │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │          Collector (15s ticker)           │          │
	│  │  - Polls the record store                 │          │
	│  │  - Refreshes cybergym_poc_records         │          │
	│  └──────────────────┬────────────────────────┘          │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐          │
	│  │        /metrics (promhttp)                │          │
	│  └───────────────────────────────────────────┘          │
	│                                                         │
	│  ┌───────────────────────────────────────────┐          │
	│  │          Health Registry                  │          │
	│  │  - RegisterComponent / UpdateComponent    │          │
	│  │  - /health: any component unhealthy → 503 │          │
	│  │  - /ready: storage+containerd+api → 503   │          │
	│  └───────────────────────────────────────────┘          │
	└─────────────────────────────────────────────────────────┘

# Exposed Metrics

Counters:
  - cybergym_submissions_total{mode,status}
  - cybergym_container_runs_total{kind,mode}
  - cybergym_container_run_timeouts_total{kind,mode}
  - cybergym_verification_sweeps_total
  - cybergym_api_requests_total{path,method,status}

Histograms:
  - cybergym_container_run_duration_seconds{kind,mode}
  - cybergym_verification_sweep_duration_seconds
  - cybergym_api_request_duration_seconds{path}
  - cybergym_upload_bytes

Gauges:
  - cybergym_poc_records
  - cybergym_build_info{version}

# Usage

Inline observation with a timer:

	timer := metrics.NewTimer()
	result, err := engine.Run(ctx, spec, waitTimeout)
	metrics.ContainerRunsTotal.WithLabelValues(kind, mode).Inc()
	timer.ObserveDurationVec(metrics.ContainerRunDuration, kind, mode)

Health registration at startup:

	metrics.RegisterComponent("storage", true, "")
	metrics.RegisterComponent("containerd", true, "")

Serving:

	router.Handle("/metrics", metrics.Handler())
	router.HandleFunc("/health", metrics.HealthHandler())
	router.HandleFunc("/ready", metrics.ReadyHandler())

# Monitoring

The run duration histogram is the primary latency signal; its buckets
extend to 120s because runs are bounded by the configurable outer wait
timeout, not by typical HTTP latencies. Timeout kills are counted
separately so a misbehaving task image shows up as a rate, not just as
a duration outlier.

# See Also

  - pkg/api: request middleware feeding the API metrics
  - pkg/runtime: run counters and durations
  - pkg/storage: polled by the Collector
*/
package metrics
