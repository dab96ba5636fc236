/*
Package filesystem provides resilient filesystem operations with automatic retry
logic for NFS stale file handle errors.

The public media location, the cache and the database directory are often
network mounts. Stat, open, exclusive create and mkdir are wrapped so that an
ESTALE (errno 116) error is retried with exponential backoff while every other
error is returned immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	f, err := filesystem.CreateExclusiveWithRetry(dst, 0o644, filesystem.DefaultRetryConfig())
	if errors.Is(err, os.ErrExist) {
	    // name taken, pick another
	}

# Retry Behavior

Defaults: 3 retries, 50ms initial backoff, 500ms cap. Only ESTALE triggers a
retry.

# Metrics

Operations are labeled with a volume name resolved by longest-prefix match
against the configured mounts ("public", "cache", "database"). Metrics are
recorded through an Observer installed with SetObserver; without one,
recording is skipped.
*/
package filesystem
