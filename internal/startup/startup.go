package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-publisher/internal/logging"
	"media-publisher/internal/media"
	"media-publisher/internal/memory"
	"media-publisher/internal/storage"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Defaults
const (
	DefaultNotifyTimeout = 5 * time.Second
	DefaultIndexInterval = 30 * time.Minute
	DefaultMaxUploadMB   = 64
	DefaultQueueSize     = 256
)

// Config holds all application configuration
type Config struct {
	PublicDir       string
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	StorageBackend string
	Encoder        string
	NotifyMode     string
	NotifyTimeout  time.Duration
	IndexInterval  time.Duration
	// IndexWorkers is 0 when the worker count should be derived from CPUs.
	IndexWorkers   int
	IndexQueueSize int
	MaxUploadBytes int64
	// SourceDirs limits save-file sources; empty allows any readable file.
	SourceDirs []string

	S3 storage.S3Config

	// Derived paths
	DatabasePath string
	ThumbnailDir string

	// Feature flags based on directory availability
	ThumbnailsEnabled bool
}

// StorageConfig returns the backend selection for storage.New.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend: c.StorageBackend,
		Root:    c.PublicDir,
		S3:      c.S3,
	}
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	logConfig(cfg)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, dir := range []*string{&cfg.PublicDir, &cfg.CacheDir, &cfg.DatabaseDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve directory path %s: %w", *dir, err)
		}
		*dir = abs
	}
	logging.Info("  Public directory (absolute):   %s", cfg.PublicDir)
	logging.Info("  Cache directory (absolute):    %s", cfg.CacheDir)
	logging.Info("  Database directory (absolute): %s", cfg.DatabaseDir)

	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, "media.db")
	cfg.ThumbnailDir = filepath.Join(cfg.CacheDir, "thumbnails")

	if err := ensureDirectory(cfg.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// The public directory receives every published asset unless the
	// objects go to S3.
	if cfg.StorageBackend != storage.BackendS3 {
		if err := ensureDirectory(cfg.PublicDir, "public"); err != nil {
			return nil, fmt.Errorf("public directory error: %w", err)
		}
		if err := testWriteAccess(cfg.PublicDir); err != nil {
			return nil, fmt.Errorf("public directory is not writable (required for publishing): %w", err)
		}
		logging.Info("  [OK] Public directory is writable")
	} else if err := ensureDirectory(cfg.PublicDir, "public"); err != nil {
		logging.Warn("  Public directory issue: %v", err)
	}

	cfg.ThumbnailsEnabled = setupOptionalDir(cfg.ThumbnailDir, "thumbnails")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    Storage:     %s", cfg.StorageBackend)
	logging.Info("    Thumbnails:  %s", enabledString(cfg.ThumbnailsEnabled))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

// configFromEnv reads and validates the environment without touching the
// filesystem.
func configFromEnv() (*Config, error) {
	cfg := &Config{
		PublicDir:       getEnv("PUBLIC_DIR", "/media"),
		CacheDir:        getEnv("CACHE_DIR", "/cache"),
		DatabaseDir:     getEnv("DATABASE_DIR", "/database"),
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:  getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", storage.BackendFile)),
		Encoder:         strings.ToLower(getEnv("ENCODER", media.EncoderImaging)),
		NotifyMode:      strings.ToLower(getEnv("NOTIFY_MODE", "scan")),
		NotifyTimeout:   getEnvDuration("NOTIFY_TIMEOUT", DefaultNotifyTimeout),
		IndexInterval:   getEnvDuration("INDEX_INTERVAL", DefaultIndexInterval),
		IndexWorkers:    getEnvInt("INDEX_WORKERS", 0),
		IndexQueueSize:  getEnvInt("INDEX_QUEUE_SIZE", DefaultQueueSize),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", DefaultMaxUploadMB)) << 20,
		SourceDirs:      splitList(os.Getenv("SOURCE_DIRS")),
		S3: storage.S3Config{
			Bucket:    os.Getenv("S3_BUCKET"),
			Prefix:    os.Getenv("S3_PREFIX"),
			Region:    os.Getenv("S3_REGION"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
	}

	switch cfg.StorageBackend {
	case storage.BackendFile, storage.BackendRecord:
	case storage.BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("STORAGE_BACKEND=s3 requires S3_BUCKET")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (want %s, %s or %s)",
			cfg.StorageBackend, storage.BackendFile, storage.BackendRecord, storage.BackendS3)
	}

	switch cfg.Encoder {
	case media.EncoderImaging, media.EncoderVips:
	default:
		return nil, fmt.Errorf("unknown ENCODER %q (want %s or %s)", cfg.Encoder, media.EncoderImaging, media.EncoderVips)
	}

	switch cfg.NotifyMode {
	case "scan", "broadcast", "none":
	default:
		return nil, fmt.Errorf("unknown NOTIFY_MODE %q (want scan, broadcast or none)", cfg.NotifyMode)
	}

	if cfg.NotifyTimeout <= 0 {
		logging.Warn("  NOTIFY_TIMEOUT must be positive, using default: %v", DefaultNotifyTimeout)
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.IndexQueueSize <= 0 {
		cfg.IndexQueueSize = DefaultQueueSize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadMB << 20
	}
	return cfg, nil
}

func logConfig(cfg *Config) {
	logging.Info("  PUBLIC_DIR:          %s", cfg.PublicDir)
	logging.Info("  CACHE_DIR:           %s", cfg.CacheDir)
	logging.Info("  DATABASE_DIR:        %s", cfg.DatabaseDir)
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  STORAGE_BACKEND:     %s", cfg.StorageBackend)
	logging.Info("  ENCODER:             %s", cfg.Encoder)
	logging.Info("  NOTIFY_MODE:         %s", cfg.NotifyMode)
	logging.Info("  NOTIFY_TIMEOUT:      %v", cfg.NotifyTimeout)
	logging.Info("  INDEX_INTERVAL:      %v", cfg.IndexInterval)
	if cfg.IndexWorkers > 0 {
		logging.Info("  INDEX_WORKERS:       %d", cfg.IndexWorkers)
	} else {
		logging.Info("  INDEX_WORKERS:       auto")
	}
	logging.Info("  INDEX_QUEUE_SIZE:    %d", cfg.IndexQueueSize)
	logging.Info("  MAX_UPLOAD_MB:       %d", cfg.MaxUploadBytes>>20)
	if len(cfg.SourceDirs) > 0 {
		logging.Info("  SOURCE_DIRS:         %s", strings.Join(cfg.SourceDirs, ", "))
	} else {
		logging.Warn("  SOURCE_DIRS:         unrestricted (save-file reads any file the server can)")
	}
	logging.Info("  LOG_STATIC_FILES:    %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	if cfg.StorageBackend == storage.BackendS3 {
		logging.Info("  S3_BUCKET:           %s", cfg.S3.Bucket)
		logging.Info("  S3_PREFIX:           %s", cfg.S3.Prefix)
		logging.Info("  S3_REGION:           %s", cfg.S3.Region)
		if cfg.S3.Endpoint != "" {
			logging.Info("  S3_ENDPOINT:         %s", cfg.S3.Endpoint)
		}
		logging.Info("  S3 credentials:      %s", credentialSource(cfg.S3))
	}
}

func credentialSource(cfg storage.S3Config) string {
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		return "static (S3_ACCESS_KEY)"
	}
	return "default chain"
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	switch result.Source {
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", memory.FormatBytes(result.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", memory.FormatBytes(result.GoMemLimit), result.Ratio*100)
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT:      %s (from environment)", memory.FormatBytes(result.GoMemLimit))
	default:
		logging.Info("  No memory limit configured (set MEMORY_LIMIT to enable decode backpressure)")
	}
}

// LogPublisherInit logs the publishing pipeline configuration.
func LogPublisherInit(backend, encoder, notifyMode string, notifyTimeout time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PUBLISHER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Storage backend: %s", backend)
	logging.Info("  JPEG encoder:    %s", encoder)
	logging.Info("  Notify mode:     %s (timeout %v)", notifyMode, notifyTimeout)

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		logging.Info("  ffmpeg not found, video thumbnails disabled")
	} else if err := checkFFmpeg(); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
	} else {
		logging.Info("  [OK] FFmpeg is available for video thumbnails")
	}
}

// LogThumbnailInit logs thumbnail generator initialization
func LogThumbnailInit(enabled bool) {
	if !enabled {
		logging.Info("  Thumbnails disabled (cache directory not writable)")
	}
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(workers, queueSize int, sweepInterval time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INDEXER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Workers:        %d", workers)
	logging.Info("  Queue size:     %d", queueSize)
	logging.Info("  Sweep interval: %v", sweepInterval)
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Publish API:   http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                    _ _                   _     _ _     _
  _ __ ___   ___  __| (_) __ _       _ __  _   _| |__ | (_)___| |__
 | '_ ' _ \ / _ \/ _' | |/ _' |_____| '_ \| | | | '_ \| | / __| '_ \
 | | | | | |  __/ (_| | | (_| |_____| |_) | |_| | |_) | | \__ \ | | |
 |_| |_| |_|\___|\__,_|_|\__,_|     | .__/ \__,_|_.__/|_|_|___/_| |_|
                                    |_|
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ffmpeg", "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}
	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(line))
	}
	return nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
