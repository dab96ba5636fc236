package indexer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-publisher/internal/database"
	"media-publisher/internal/filesystem"
	"media-publisher/internal/logging"
	"media-publisher/internal/media"
	"media-publisher/internal/mediatypes"
	"media-publisher/internal/metrics"
	"media-publisher/internal/workers"
)

const (
	// DefaultQueueSize is the default capacity of the scan queue.
	DefaultQueueSize = 256
	// DefaultSweepInterval is how often missing files are swept.
	DefaultSweepInterval = 30 * time.Minute
	// DefaultPendingMaxAge is the age after which pending records are abandoned.
	DefaultPendingMaxAge = time.Hour

	// Upper bound on automatically sized worker pools
	maxWorkers = 16
	// Per-job budget for the database work of a broadcast (no caller context)
	jobTimeout = 30 * time.Second
)

var (
	// ErrIndexerStopped is returned for requests made or pending after Stop.
	ErrIndexerStopped = errors.New("indexer stopped")
	// ErrQueueFull is returned by Broadcast when the queue has no room.
	ErrQueueFull = errors.New("index queue full")
	// ErrOutsideRoot is returned for paths outside the public media root.
	ErrOutsideRoot = errors.New("path is outside the media root")
	// ErrNotRegularFile is returned for directories and special files.
	ErrNotRegularFile = errors.New("not a regular file")
)

// Notifier announces published files to the media index.
type Notifier interface {
	// Scan indexes path and waits for the result or ctx to end.
	Scan(ctx context.Context, path string) (ScanResult, error)
	// Broadcast queues path for indexing without waiting.
	Broadcast(path string) error
}

// ScanResult is the completion signal of a Scan.
type ScanResult struct {
	URI      string               `json:"uri"`
	ID       int64                `json:"id"`
	Kind     mediatypes.MediaKind `json:"kind"`
	MimeType string               `json:"mimeType,omitempty"`
	Size     int64                `json:"size"`
	Path     string               `json:"path"`
}

// Store is the part of the media database the indexer uses.
type Store interface {
	UpsertScan(ctx context.Context, rec database.MediaRecord) (int64, error)
	SweepMissing(ctx context.Context, exists func(path string) bool) ([]int64, error)
	PurgeStalePending(ctx context.Context, maxAge time.Duration) ([]string, error)
	GetLastSweep(ctx context.Context) (time.Time, error)
	SetLastSweep(ctx context.Context, t time.Time) error
}

// Config configures an Indexer. Zero values select defaults.
type Config struct {
	// Root is the public media root. Paths outside it are rejected.
	Root string
	// Workers is the pool size; 0 sizes the pool with workers.ForIO.
	Workers int
	// QueueSize is the scan queue capacity.
	QueueSize int
	// SweepInterval is the period of the missing-file sweep; <0 disables it.
	SweepInterval time.Duration
	// PendingMaxAge is passed to the pending-record purge.
	PendingMaxAge time.Duration
	// Lookup resolves extensions to MIME types.
	Lookup mediatypes.Lookup
}

type scanReply struct {
	result ScanResult
	err    error
}

type job struct {
	ctx      context.Context
	path     string
	enqueued time.Time
	// reply is nil for broadcasts
	reply chan scanReply
}

// Indexer is the media index notifier.
type Indexer struct {
	store  Store
	thumbs *media.ThumbnailGenerator
	cfg    Config
	root   string

	jobs     chan job
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// mu guards stopped against concurrent enqueues
	mu      sync.RWMutex
	stopped bool

	running        atomic.Bool
	startTime      time.Time
	scansCompleted atomic.Int64
	scansFailed    atomic.Int64
	lastSweep      atomic.Int64 // unix seconds
}

// New creates an Indexer. thumbs may be nil to skip thumbnails.
func New(store Store, thumbs *media.ThumbnailGenerator, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForIO(maxWorkers)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PendingMaxAge <= 0 {
		cfg.PendingMaxAge = DefaultPendingMaxAge
	}
	if cfg.Lookup == nil {
		cfg.Lookup = mediatypes.DefaultLookup
	}

	root := ""
	if cfg.Root != "" {
		if abs, err := filepath.Abs(cfg.Root); err == nil {
			root = abs
		} else {
			root = filepath.Clean(cfg.Root)
		}
	}

	return &Indexer{
		store:     store,
		thumbs:    thumbs,
		cfg:       cfg,
		root:      root,
		jobs:      make(chan job, cfg.QueueSize),
		stopChan:  make(chan struct{}),
		startTime: time.Now(),
	}
}

// Start launches the worker pool and the periodic sweep.
func (idx *Indexer) Start() {
	if !idx.running.CompareAndSwap(false, true) {
		return
	}

	idx.restoreLastSweep()

	logging.Info("Starting index workers: %d (queue size %d)", idx.cfg.Workers, idx.cfg.QueueSize)
	metrics.IndexWorkers.Set(float64(idx.cfg.Workers))

	for i := 0; i < idx.cfg.Workers; i++ {
		idx.wg.Add(1)
		go idx.worker(i)
	}

	if idx.cfg.SweepInterval > 0 {
		idx.wg.Add(1)
		go idx.periodicSweep()
	}
}

// restoreLastSweep seeds the sweep timestamp from the previous run so
// health output survives a restart.
func (idx *Indexer) restoreLastSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	last, err := idx.store.GetLastSweep(ctx)
	if err != nil {
		logging.Warn("failed to load last sweep time: %v", err)
		return
	}
	if last.IsZero() {
		return
	}
	if idx.lastSweep.CompareAndSwap(0, last.Unix()) {
		metrics.IndexLastSweepTimestamp.Set(float64(last.Unix()))
	}
}

// Stop stops the workers and fails any request still queued with
// ErrIndexerStopped. It is safe to call more than once.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() {
		close(idx.stopChan)

		idx.mu.Lock()
		idx.stopped = true
		idx.mu.Unlock()

		idx.wg.Wait()
		idx.running.Store(false)
		metrics.IndexWorkers.Set(0)

		// Nothing can enqueue any more; fail what is left
		for {
			select {
			case j := <-idx.jobs:
				if j.reply != nil {
					j.reply <- scanReply{err: ErrIndexerStopped}
				}
			default:
				metrics.IndexQueueDepth.Set(0)
				logging.Info("Indexer stopped")
				return
			}
		}
	})
}

// Scan implements Notifier. The returned error wraps ctx.Err() when the
// context ends before the index answers.
func (idx *Indexer) Scan(ctx context.Context, path string) (ScanResult, error) {
	start := time.Now()
	reply := make(chan scanReply, 1)

	if err := idx.enqueue(ctx, job{ctx: ctx, path: path, enqueued: start, reply: reply}, true); err != nil {
		return ScanResult{}, err
	}

	select {
	case r := <-reply:
		metrics.NotifyLatency.Observe(time.Since(start).Seconds())
		return r.result, r.err
	case <-ctx.Done():
		return ScanResult{}, fmt.Errorf("scan %s: %w", path, ctx.Err())
	}
}

// Broadcast implements Notifier. It never blocks; a full queue is an error.
func (idx *Indexer) Broadcast(path string) error {
	return idx.enqueue(context.Background(), job{path: path, enqueued: time.Now()}, false)
}

func (idx *Indexer) enqueue(ctx context.Context, j job, wait bool) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.stopped {
		return ErrIndexerStopped
	}

	if !wait {
		select {
		case idx.jobs <- j:
			metrics.IndexQueueDepth.Set(float64(len(idx.jobs)))
			return nil
		default:
			return ErrQueueFull
		}
	}

	select {
	case idx.jobs <- j:
		metrics.IndexQueueDepth.Set(float64(len(idx.jobs)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue scan %s: %w", j.path, ctx.Err())
	case <-idx.stopChan:
		return ErrIndexerStopped
	}
}

func (idx *Indexer) worker(id int) {
	defer idx.wg.Done()
	logging.Debug("Index worker %d started", id)

	for {
		select {
		case j := <-idx.jobs:
			metrics.IndexQueueDepth.Set(float64(len(idx.jobs)))
			idx.handle(j)
		case <-idx.stopChan:
			logging.Debug("Index worker %d stopping", id)
			return
		}
	}
}

// handle runs one job and delivers its reply. The reply channel is buffered,
// so a caller that gave up never blocks the worker.
func (idx *Indexer) handle(j job) {
	ctx := j.ctx
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
	}

	var (
		result ScanResult
		err    error
	)
	if ctx.Err() != nil {
		// Caller already gave up; don't spend work on it
		err = ctx.Err()
	} else {
		result, err = idx.index(ctx, j.path)
	}

	if err != nil {
		idx.scansFailed.Add(1)
		if j.reply == nil {
			logging.Warn("Broadcast index of %s failed: %v", j.path, err)
		} else {
			logging.Debug("Scan of %s failed: %v", j.path, err)
		}
	} else {
		idx.scansCompleted.Add(1)
		logging.Debug("Indexed %s as %s (queued %v)", j.path, result.URI, time.Since(j.enqueued))
	}

	if j.reply != nil {
		j.reply <- scanReply{result: result, err: err}
	}
}

// index stats, classifies and records a single file.
func (idx *Indexer) index(ctx context.Context, path string) (ScanResult, error) {
	start := time.Now()
	kind := mediatypes.KindImage
	status := "error"
	defer func() {
		metrics.IndexScansTotal.WithLabelValues(string(kind), status).Inc()
		metrics.IndexScanDuration.Observe(time.Since(start).Seconds())
	}()

	absPath, relDir, err := idx.resolve(path)
	if err != nil {
		return ScanResult{}, err
	}

	info, err := filesystem.StatWithRetry(absPath, filesystem.DefaultRetryConfig())
	filesystem.ObserveOperation(absPath, "stat", start, err)
	if err != nil {
		return ScanResult{}, fmt.Errorf("stat %s: %w", absPath, err)
	}
	if !info.Mode().IsRegular() {
		return ScanResult{}, fmt.Errorf("%w: %s", ErrNotRegularFile, absPath)
	}

	var mime string
	kind, mime = mediatypes.Classify(idx.cfg.Lookup, mediatypes.ExtOf(absPath))

	rec := database.MediaRecord{
		DisplayName:  filepath.Base(absPath),
		RelativePath: relDir,
		MimeType:     mime,
		Kind:         kind,
		DataPath:     absPath,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
	}
	switch kind {
	case mediatypes.KindImage:
		if dims, err := imageDimensions(absPath); err == nil {
			rec.Width, rec.Height = dims.Width, dims.Height
		} else {
			logging.Debug("Could not read dimensions of %s: %v", absPath, err)
		}
	case mediatypes.KindVideo:
		if info, err := media.ProbeVideo(ctx, absPath); err == nil {
			rec.Width, rec.Height = info.Width, info.Height
		} else if !errors.Is(err, media.ErrProbeUnavailable) {
			logging.Debug("Could not probe %s: %v", absPath, err)
		}
	}

	id, err := idx.store.UpsertScan(ctx, rec)
	if err != nil {
		return ScanResult{}, err
	}

	if idx.thumbs.IsEnabled() {
		if _, err := idx.thumbs.Generate(absPath, kind, id); err != nil && !errors.Is(err, media.ErrThumbnailUnsupported) {
			logging.Warn("Thumbnail for %s failed: %v", absPath, err)
		}
	}

	status = "success"
	return ScanResult{
		URI:      database.ContentURI(kind, id),
		ID:       id,
		Kind:     kind,
		MimeType: mime,
		Size:     info.Size(),
		Path:     absPath,
	}, nil
}

// resolve returns the absolute path and its directory relative to the root.
func (idx *Indexer) resolve(path string) (string, string, error) {
	if strings.TrimSpace(path) == "" {
		return "", "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", "", err
	}
	if idx.root == "" {
		return absPath, filepath.Base(filepath.Dir(absPath)), nil
	}

	rel, err := filepath.Rel(idx.root, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	relDir := filepath.ToSlash(filepath.Dir(rel))
	if relDir == "." {
		relDir = ""
	}
	return absPath, relDir, nil
}

func imageDimensions(path string) (media.ImageDimensions, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return media.ImageDimensions{}, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return media.ImageDimensions{}, err
	}
	return media.ImageDimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Sweep removes index entries whose data file vanished and purges pending
// records abandoned by a crash. Returns the number of removed entries.
func (idx *Indexer) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	metrics.IndexSweepsTotal.Inc()

	exists := func(path string) bool {
		_, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		// Only a definite "not exist" removes a record; transient errors keep it
		return !os.IsNotExist(err)
	}

	removed, err := idx.store.SweepMissing(ctx, exists)
	if err != nil {
		return 0, fmt.Errorf("sweep missing files: %w", err)
	}
	for _, id := range removed {
		idx.thumbs.Remove(id)
	}

	abandoned, err := idx.store.PurgeStalePending(ctx, idx.cfg.PendingMaxAge)
	if err != nil {
		return len(removed), fmt.Errorf("purge pending records: %w", err)
	}
	for _, p := range abandoned {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove abandoned data file %s: %v", p, err)
		}
	}

	total := len(removed) + len(abandoned)
	metrics.IndexRecordsRemoved.Add(float64(total))

	now := time.Now()
	idx.lastSweep.Store(now.Unix())
	metrics.IndexLastSweepTimestamp.Set(float64(now.Unix()))
	if err := idx.store.SetLastSweep(ctx, now); err != nil {
		logging.Warn("failed to record last sweep time: %v", err)
	}

	if total > 0 {
		logging.Info("Sweep removed %d missing and %d abandoned records in %v", len(removed), len(abandoned), time.Since(start))
	} else {
		logging.Debug("Sweep found nothing to remove (%v)", time.Since(start))
	}
	return total, nil
}

func (idx *Indexer) periodicSweep() {
	defer idx.wg.Done()

	ticker := time.NewTicker(idx.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic sweep triggered")
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			if _, err := idx.Sweep(ctx); err != nil {
				logging.Error("periodic sweep failed: %v", err)
			}
			cancel()
		case <-idx.stopChan:
			return
		}
	}
}

// IsReady reports whether the workers are running.
func (idx *Indexer) IsReady() bool {
	return idx.running.Load()
}

// HealthStatus is the indexer section of the health endpoint.
type HealthStatus struct {
	Ready          bool      `json:"ready"`
	Workers        int       `json:"workers"`
	QueueDepth     int       `json:"queueDepth"`
	QueueCapacity  int       `json:"queueCapacity"`
	StartTime      time.Time `json:"startTime"`
	Uptime         string    `json:"uptime"`
	LastSweep      time.Time `json:"lastSweep,omitempty"`
	ScansCompleted int64     `json:"scansCompleted"`
	ScansFailed    int64     `json:"scansFailed"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	status := HealthStatus{
		Ready:          idx.IsReady(),
		Workers:        idx.cfg.Workers,
		QueueDepth:     len(idx.jobs),
		QueueCapacity:  cap(idx.jobs),
		StartTime:      idx.startTime,
		Uptime:         time.Since(idx.startTime).Round(time.Second).String(),
		ScansCompleted: idx.scansCompleted.Load(),
		ScansFailed:    idx.scansFailed.Load(),
	}
	if ts := idx.lastSweep.Load(); ts > 0 {
		status.LastSweep = time.Unix(ts, 0)
	}
	return status
}
