// Package startup handles configuration loading and the startup and
// shutdown log output.
//
// # Configuration
//
// [LoadConfig] reads the environment:
//
//   - PUBLIC_DIR: public media location (default: /media)
//   - CACHE_DIR: thumbnail cache (default: /cache)
//   - DATABASE_DIR: SQLite database directory (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED: listeners (8080, 9090, true)
//   - STORAGE_BACKEND: file, record or s3 (default: file)
//   - ENCODER: imaging or vips (default: imaging)
//   - NOTIFY_MODE: scan, broadcast or none (default: scan)
//   - NOTIFY_TIMEOUT: bound on waiting for the index (default: 5s)
//   - INDEX_INTERVAL: missing-file sweep interval (default: 30m)
//   - INDEX_WORKERS, INDEX_QUEUE_SIZE: index worker pool sizing
//   - MAX_UPLOAD_MB: request body limit for image uploads (default: 64)
//   - S3_BUCKET, S3_PREFIX, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY
//   - LOG_LEVEL, LOG_STATIC_FILES, LOG_HEALTH_CHECKS
//
// The database and public directories must be writable; the thumbnail
// cache is optional and disabled with a warning when it is not.
//
// Build information is injected with -ldflags into [Version], [Commit] and
// [BuildTime].
package startup
