/*
Package metrics provides Prometheus metrics collection and exposition for the mirror.

The metrics package defines and registers all mirror metrics using the Prometheus
client library, providing observability into queue depth, scan activity, store
state, worker health, and upstream quota consumption. Metrics are exposed via
HTTP endpoint for scraping by Prometheus servers, and a small health registry
backs the /health and /ready endpoints.

# Architecture

Metrics flow from two sources: periodic sampling of engine state, and the
engine's broker events:

	┌───────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                           │
	│  ┌──────────────┐   poll 15s   ┌────────────────────┐    │
	│  │    Engine     │◄────────────│     Collector      │    │
	│  │  queue/store/ │             │  - samples gauges  │    │
	│  │  quota/targets│   events    │  - folds events    │    │
	│  │  broker ──────┼────────────►│    into counters   │    │
	│  └──────────────┘             └─────────┬──────────┘    │
	│                                          │                │
	│  ┌───────────────────────────────────────▼─────────────┐ │
	│  │              Prometheus Registry                     │ │
	│  │  - Global DefaultRegistry                            │ │
	│  │  - MustRegister at package init                      │ │
	│  │  - Automatic Go runtime metrics                      │ │
	│  └───────────────────────────┬─────────────────────────┘ │
	│                              │                            │
	│  ┌───────────────────────────▼─────────────────────────┐ │
	│  │            HTTP Metrics Endpoint                     │ │
	│  │  - Path: /metrics                                    │ │
	│  │  - Format: Prometheus text exposition                │ │
	│  │  - Handler: promhttp.Handler()                       │ │
	│  └─────────────────────────────────────────────────────┘ │
	└───────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Collector:
  - Samples engine state every 15 seconds into the gauges
  - Subscribes to the engine's broker and folds events into counters
  - Marks the workers health component unhealthy on a stall
  - Start/Stop lifecycle managed by the serve command

Health Checker:
  - Package-level registry of named component states
  - GetHealth aggregates: any unhealthy component makes the whole
    process unhealthy
  - GetReadiness checks the critical components (store, engine, api)
  - HTTP handlers for /health, /ready and /live

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Queue Metrics:

ghm_queue_available_work:
  - Type: Gauge
  - Description: Work units waiting in the request queue

ghm_queue_active_resources:
  - Type: Gauge
  - Description: Resources currently leased by workers

Scan Metrics:

ghm_full_scan_in_progress:
  - Type: Gauge
  - Description: Whether a full scan is running (1=yes, 0=no)

ghm_full_scans_total:
  - Type: Counter
  - Description: Full scans started since process start

ghm_event_scans_total:
  - Type: Counter
  - Description: Event scans started since process start

ghm_processed_events:
  - Type: Gauge
  - Description: Upstream event ids currently tracked as processed

Store Metrics:

ghm_store_initialized:
  - Type: Gauge
  - Description: Whether the database passed its initial full scan

ghm_store_resets_total:
  - Type: Counter
  - Description: Database resets observed after configuration changes

ghm_issue_changes_total:
  - Type: Counter
  - Description: Issue documents written because upstream content changed

Worker Metrics:

ghm_worker_stalls_total:
  - Type: Counter
  - Description: Work units cancelled by the watchdog

Upstream Metrics:

ghm_upstream_quota_remaining:
  - Type: Gauge
  - Description: Requests remaining in the upstream rate window

ghm_upstream_quota_limit:
  - Type: Gauge
  - Description: Size of the upstream rate window

API Metrics:

ghm_api_requests_total{method, status}:
  - Type: Counter
  - Description: Mirror API requests by HTTP method and status
  - Labels: method, status

ghm_api_request_duration_seconds{method}:
  - Type: Histogram
  - Description: Mirror API request duration in seconds
  - Labels: method

# Usage

Starting the collector:

	import "github.com/cuemby/ghmirror/pkg/metrics"

	collector := metrics.NewCollector(eng)
	collector.Start()
	defer collector.Stop()

Instrumenting a request handler:

	timer := metrics.NewTimer()
	// ... serve the request ...
	timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	metrics.APIRequestsTotal.WithLabelValues(r.Method, "200").Inc()

Exposing the endpoints:

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

Reporting component health:

	metrics.RegisterComponent("store", true, "")
	metrics.UpdateComponent("engine", false, "resolving targets")

# Integration Points

This package integrates with:

  - pkg/engine: Collector samples queue, store and quota state
  - pkg/events: Collector subscribes to the engine broker
  - pkg/api: Instruments request count and duration, serves the endpoints
  - cmd/ghmirror: Starts the collector and registers components
  - Prometheus: Scrapes /metrics endpoint

# Monitoring

Prometheus queries (PromQL):

Ingestion Health:
  - Queue backlog: ghm_queue_available_work
  - Scan rate: rate(ghm_event_scans_total[15m])
  - Change rate: rate(ghm_issue_changes_total[1h])
  - Stalls: rate(ghm_worker_stalls_total[1h]) > 0

Upstream Budget:
  - Quota headroom: ghm_upstream_quota_remaining / ghm_upstream_quota_limit
  - Full scan running: ghm_full_scan_in_progress == 1

API Performance:
  - Request rate: rate(ghm_api_requests_total[1m])
  - Error rate: rate(ghm_api_requests_total{status=~"5.."}[1m])
  - p95 latency: histogram_quantile(0.95, ghm_api_request_duration_seconds_bucket)

# Important Notes

  - Metrics register against the default registry in init(), so importing
    this package twice under different names will panic at startup
  - The collector keeps a broker subscription for its whole lifetime;
    always call Stop before stopping the engine
  - Counters reset on process restart; the store gauges are recomputed
    from engine state on the first collection
  - Label cardinality is bounded: method and status are the only labels
*/
package metrics
