package filesystem

// Observer records filesystem operation metrics. The implementation lives in
// the metrics package so that filesystem stays free of Prometheus imports.
type Observer interface {
	// ObserveOperation records duration and error status for a filesystem operation.
	// volume is the resolved mount point label (e.g., "public", "cache", "database").
	// operation is the fs operation type: "stat", "read", "write", "mkdir".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)
	// The retry hooks use retryOp "stat", "open", "create" or "mkdir".
	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is silently skipped (safe for tests).
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
