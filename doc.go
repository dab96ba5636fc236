// Command media-publisher runs the asset publishing service.
//
// It accepts three kinds of publish request over HTTP: copy an existing file
// into the public media collection, encode an in-memory image as JPEG into
// it, or ask the media index to refresh a file that is already there. Every
// published asset is announced to the media index so it becomes visible to
// gallery clients.
//
// # Startup
//
//  1. Memory: GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration from the environment, directory checks
//  3. SQLite database (media records, metadata, API token hash)
//  4. Encoder (imaging or libvips), thumbnail generator, index workers
//  5. Storage backend (file, record or s3) and the publisher
//  6. HTTP API and the optional metrics server
//
// # Environment Variables
//
//   - PUBLIC_DIR: public media collection root (default: /media)
//   - CACHE_DIR: thumbnail cache (default: /cache)
//   - DATABASE_DIR: SQLite database directory (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED
//   - STORAGE_BACKEND: file, record or s3
//   - ENCODER: imaging or vips
//   - NOTIFY_MODE: scan, broadcast or none; NOTIFY_TIMEOUT (default: 5s)
//   - INDEX_WORKERS, INDEX_QUEUE_SIZE, INDEX_INTERVAL
//   - MAX_UPLOAD_MB: largest accepted image payload
//   - SOURCE_DIRS: comma separated roots that save-file may copy from
//     (default: unrestricted, any file readable by the process)
//   - S3_BUCKET, S3_PREFIX, S3_REGION, S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY
//   - LOG_LEVEL: debug, info, warn or error
//
// # Graceful Shutdown
//
// SIGINT and SIGTERM stop the HTTP servers first, then the metrics
// collector, the index workers and the memory gate, and finally close the
// database. Shutdown is bounded by a 30 second timeout.
//
// The API token used by the bearer auth middleware is managed with the
// publishtoken command.
package main
