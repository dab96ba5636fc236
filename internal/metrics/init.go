package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(backend string) {
	// --- Publish operations per backend ---
	for _, op := range []string{"file", "image", "refresh"} {
		for _, status := range []string{"success", "error"} {
			PublishOperationsTotal.WithLabelValues(op, backend, status)
		}
		PublishDuration.WithLabelValues(op)
	}
	PublishBytesWritten.WithLabelValues(backend)
	DestinationCollisions.WithLabelValues(backend)

	for _, code := range []string{"source_not_found", "source_unreadable", "destination_create_failed",
		"write_failed", "invalid_image_payload", "invalid_argument", "notify_timeout", "internal"} {
		PublishErrors.WithLabelValues(code)
	}

	// --- Notifications ---
	for _, mode := range []string{"scan", "broadcast"} {
		for _, status := range []string{"success", "error", "timeout", "skipped"} {
			NotificationsTotal.WithLabelValues(mode, status)
		}
	}

	// --- Index scans and records ---
	for _, kind := range []string{"image", "video"} {
		IndexScansTotal.WithLabelValues(kind, "success")
		IndexScansTotal.WithLabelValues(kind, "error")
		MediaRecordsTotal.WithLabelValues(kind)
	}

	for _, status := range []string{"success", "error", "skipped"} {
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}

	for _, enc := range []string{"imaging", "vips"} {
		ImageEncodeDuration.WithLabelValues(enc)
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"public", "cache", "database", "unknown"}
	fsOps := []string{"read", "write", "stat", "mkdir"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	retryOps := []string{"stat", "open", "create", "mkdir"}
	for _, op := range retryOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "insert_pending", "finalize_record", "delete_record",
		"upsert_scan", "get_record", "list_records", "sweep_missing", "set_metadata", "get_metadata"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, status := range []string{"success", "failure", "missing", "error"} {
		AuthAttemptsTotal.WithLabelValues(status)
	}
}
