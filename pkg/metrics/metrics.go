package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueAvailableWork = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_queue_available_work",
			Help: "Units of mirror work waiting in the queue",
		},
	)

	QueueActiveResources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_queue_active_resources",
			Help: "Units of mirror work currently being processed",
		},
	)

	// Scan metrics
	FullScanInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_full_scan_in_progress",
			Help: "Whether a full scan is currently running (1 = running)",
		},
	)

	FullScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghm_full_scans_total",
			Help: "Total number of full scans started",
		},
	)

	EventScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghm_event_scans_total",
			Help: "Total number of per-owner event scans started",
		},
	)

	ProcessedEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_processed_events",
			Help: "Size of the in-memory processed-event set",
		},
	)

	// Store metrics
	StoreInitialized = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_store_initialized",
			Help: "Whether the content store holds a completed full scan (1 = yes)",
		},
	)

	StoreResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghm_store_resets_total",
			Help: "Total number of store resets after configuration drift",
		},
	)

	IssueChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghm_issue_changes_total",
			Help: "Total number of detected issue changes",
		},
	)

	// Worker metrics
	WorkerStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghm_worker_stalls_total",
			Help: "Total number of stalled work units cancelled by the watchdog",
		},
	)

	// Upstream metrics
	UpstreamQuotaRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_upstream_quota_remaining",
			Help: "Most recently observed remaining upstream request quota",
		},
	)

	UpstreamQuotaLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghm_upstream_quota_limit",
			Help: "Size of the upstream request quota window",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghm_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ghm_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(QueueAvailableWork)
	prometheus.MustRegister(QueueActiveResources)
	prometheus.MustRegister(FullScanInProgress)
	prometheus.MustRegister(FullScansTotal)
	prometheus.MustRegister(EventScansTotal)
	prometheus.MustRegister(ProcessedEvents)
	prometheus.MustRegister(StoreInitialized)
	prometheus.MustRegister(StoreResetsTotal)
	prometheus.MustRegister(IssueChangesTotal)
	prometheus.MustRegister(WorkerStallsTotal)
	prometheus.MustRegister(UpstreamQuotaRemaining)
	prometheus.MustRegister(UpstreamQuotaLimit)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
