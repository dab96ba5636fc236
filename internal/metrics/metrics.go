package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_publisher_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Publish metrics
var (
	PublishOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_publish_operations_total",
			Help: "Total number of publish operations",
		},
		[]string{"operation", "backend", "status"}, // operation: "file", "image", "refresh"
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_publisher_publish_duration_seconds",
			Help:    "Publish operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	PublishBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_publish_bytes_written_total",
			Help: "Total bytes written to the public media location",
		},
		[]string{"backend"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_publish_errors_total",
			Help: "Total number of failed publish operations by error code",
		},
		[]string{"code"},
	)

	DestinationCollisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_destination_collisions_total",
			Help: "Number of destination names that were taken and suffix-disambiguated",
		},
		[]string{"backend"},
	)
)

// Notification metrics
var (
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_notifications_total",
			Help: "Total number of media index notifications",
		},
		[]string{"mode", "status"}, // mode: "scan", "broadcast"
	)

	NotifyLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_publisher_notify_latency_seconds",
			Help:    "Time from scan request to completion signal",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)

// Index metrics
var (
	IndexQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_index_queue_depth",
			Help: "Number of scan jobs waiting in the index queue",
		},
	)

	IndexWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_index_workers",
			Help: "Number of running index workers",
		},
	)

	IndexScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_index_scans_total",
			Help: "Total number of scan jobs processed by the index",
		},
		[]string{"kind", "status"},
	)

	IndexScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_publisher_index_scan_duration_seconds",
			Help:    "Duration of a single scan job in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	IndexSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_publisher_index_sweeps_total",
			Help: "Total number of missing-file sweeps",
		},
	)

	IndexRecordsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_publisher_index_records_removed_total",
			Help: "Total number of index records removed because the data file vanished",
		},
	)

	IndexLastSweepTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_index_last_sweep_timestamp",
			Help: "Unix timestamp of the last missing-file sweep",
		},
	)
)

// Media library metrics
var (
	MediaRecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_publisher_media_records",
			Help: "Number of indexed media records by kind",
		},
		[]string{"kind"},
	)

	MediaPendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_media_pending_records",
			Help: "Number of media records still marked pending",
		},
	)

	MediaBytesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_media_bytes",
			Help: "Total size of indexed media in bytes",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_publisher_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ImageEncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_publisher_image_encode_duration_seconds",
			Help:    "Duration of decode+encode for pixel payloads",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"encoder"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_publisher_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_publisher_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations by volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts after ESTALE",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after a retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_publisher_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_publisher_memory_paused",
			Help: "1 while image decoding is paused for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_publisher_memory_gc_pauses_total",
			Help: "Number of times image decoding was paused for memory pressure",
		},
	)
)

// Authentication metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_publisher_auth_attempts_total",
			Help: "Total number of API token checks",
		},
		[]string{"status"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_publisher_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version", "backend"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion, backend string) {
	AppInfo.WithLabelValues(version, commit, goVersion, backend).Set(1)
}
