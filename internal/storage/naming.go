package storage

import (
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"media-publisher/internal/logging"
	"media-publisher/internal/metrics"
)

// MaxNameAttempts bounds the suffix search for a free name.
const MaxNameAttempts = 1000

// errTaken signals that a candidate name is in use and the next one should
// be tried.
var errTaken = errors.New("name taken")

// Clock returns the current time. Backends take one so tests can pin it.
type Clock func() time.Time

// TimestampName is the fallback name: milliseconds since the Unix epoch.
func TimestampName(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// Name computes the destination name and directory for a target:
// the display name (or a timestamp) with ".ext" appended when the backend
// requires it, inside the kind's directory. Only the timestamp fallback is
// non-deterministic.
func Name(target Target, requiresExt bool, now Clock) (dir, name string) {
	dir = target.Kind.Directory()

	name = strings.TrimSpace(target.DisplayName)
	if name == "" {
		if now == nil {
			now = time.Now
		}
		name = TimestampName(now())
	}

	if requiresExt && target.Ext != "" {
		ext := "." + target.Ext
		// Don't double the extension if the caller already supplied it
		if !strings.EqualFold(path.Ext(name), ext) {
			name += ext
		}
	}
	return dir, name
}

// Candidate returns the attempt-th candidate for name: name itself, then
// name-1, name-2, ... with the suffix placed before the extension when
// hasExt is set.
func Candidate(name string, attempt int, hasExt bool) string {
	if attempt == 0 {
		return name
	}
	suffix := "-" + strconv.Itoa(attempt)
	if hasExt {
		if ext := path.Ext(name); ext != "" && ext != name {
			return strings.TrimSuffix(name, ext) + suffix + ext
		}
	}
	return name + suffix
}

// claim tries candidates for name until try succeeds or fails with anything
// other than errTaken.
func claim[T any](backend, name string, hasExt bool, try func(candidate string) (T, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < MaxNameAttempts; attempt++ {
		candidate := Candidate(name, attempt, hasExt)
		v, err := try(candidate)
		if err == nil {
			if attempt > 0 {
				logging.Debug("Destination %q taken, using %q", name, candidate)
			}
			return v, nil
		}
		if !errors.Is(err, errTaken) {
			return zero, err
		}
		metrics.DestinationCollisions.WithLabelValues(backend).Inc()
	}
	return zero, ErrNamesExhausted
}
