package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Queue metrics
var (
	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_queue_capacity",
			Help: "Configured number of concurrently running jobs (0 = unbounded)",
		},
	)

	QueueRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_queue_jobs_running",
			Help: "Number of admitted jobs currently running",
		},
	)

	QueueWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_queue_jobs_waiting",
			Help: "Number of jobs waiting for admission",
		},
	)

	QueueWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediaforge_queue_wait_duration_seconds",
			Help:    "Time spent waiting for queue admission",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_queue_jobs_total",
			Help: "Total number of jobs by terminal status",
		},
		[]string{"status"}, // "success", "error", "canceled"
	)

	QueueJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediaforge_queue_job_duration_seconds",
			Help:    "Run time of admitted jobs",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Parallel bridge metrics
var (
	ParallelWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_parallel_workers_active",
			Help: "Number of dedicated worker threads currently running",
		},
	)

	ParallelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_parallel_calls_total",
			Help: "Total number of bridged calls by status",
		},
		[]string{"status"}, // "success", "error", "panic", "abandoned"
	)
)

// Temp file session metrics
var (
	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_sessions_open",
			Help: "Number of temp file sessions currently open",
		},
	)

	ArtifactsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_artifacts_reserved_total",
			Help: "Total number of temp file paths reserved",
		},
	)

	ArtifactsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_artifacts_deleted_total",
			Help: "Total number of temp files removed by session cleanup",
		},
	)

	ArtifactsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_artifacts_released_total",
			Help: "Total number of artifacts handed off to callers",
		},
	)

	ArtifactDeleteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_artifact_delete_errors_total",
			Help: "Total number of temp files that could not be removed",
		},
	)
)

// Size fitting metrics
var (
	FitterAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_fitter_attempts_total",
			Help: "Total number of corrective encodes by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "fit", "too_big"
	)

	FitterResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_fitter_results_total",
			Help: "Total number of size checks by kind and result",
		},
		[]string{"kind", "result"}, // "unchanged", "fitted", "aborted", "exhausted", "unsupported"
	)
)

// External tool metrics
var (
	ExternalCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_external_command_duration_seconds",
			Help:    "Duration of ffmpeg/ffprobe invocations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	ExternalCommandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_external_command_failures_total",
			Help: "Total number of external tool invocations that exited non-zero",
		},
		[]string{"tool"},
	)

	ExternalCommandsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_external_commands_running",
			Help: "Number of external tool processes currently running",
		},
	)
)

// Request pipeline metrics
var (
	ProcessRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_process_requests_total",
			Help: "Total number of processed requests by transform and status",
		},
		[]string{"transform", "status"}, // "success", "user_error", "error", "canceled"
	)

	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_process_duration_seconds",
			Help:    "End-to-end request processing duration",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"transform"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_downloads_total",
			Help: "Total number of input downloads by status",
		},
		[]string{"status"},
	)

	DownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_download_bytes_total",
			Help: "Total bytes downloaded for inputs",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_memory_paused",
			Help: "Whether queue admission is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_memory_gc_pauses_total",
			Help: "Total number of times admission was paused and GC forced",
		},
	)
)
