// Package metrics provides Prometheus instrumentation for the media publisher.
//
// All metrics are prefixed with "media_publisher_" and registered through
// promauto at package initialization.
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests.
//   - Publish: operations by operation/backend/status, durations, bytes
//     written, failures by error code and destination name collisions.
//   - Notifications: index notifications by mode and status, scan latency.
//   - Index: queue depth, workers, scans, missing-file sweeps.
//   - Media: indexed records by kind, pending records, total bytes. These
//     gauges are refreshed by the Collector from a StatsProvider.
//   - Thumbnails and image encoding durations.
//   - Database: query counts and durations.
//   - Filesystem: per-volume operation latency and ESTALE retry counters,
//     recorded through the filesystem.Observer returned by
//     NewFilesystemObserver.
//
// InitializeMetrics pre-seeds every label combination so dashboards see
// zero values before the first event.
package metrics
