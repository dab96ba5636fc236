package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-publisher/internal/storage"
)

// clearEnv unsets every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PUBLIC_DIR", "CACHE_DIR", "DATABASE_DIR", "PORT", "METRICS_PORT", "METRICS_ENABLED",
		"STORAGE_BACKEND", "ENCODER", "NOTIFY_MODE", "NOTIFY_TIMEOUT", "INDEX_INTERVAL",
		"INDEX_WORKERS", "INDEX_QUEUE_SIZE", "MAX_UPLOAD_MB", "SOURCE_DIRS", "LOG_STATIC_FILES", "LOG_HEALTH_CHECKS",
		"S3_BUCKET", "S3_PREFIX", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}

	if cfg.PublicDir != "/media" || cfg.CacheDir != "/cache" || cfg.DatabaseDir != "/database" {
		t.Errorf("dirs = %s %s %s", cfg.PublicDir, cfg.CacheDir, cfg.DatabaseDir)
	}
	if cfg.Port != "8080" || cfg.MetricsPort != "9090" || !cfg.MetricsEnabled {
		t.Errorf("ports = %s %s metrics=%v", cfg.Port, cfg.MetricsPort, cfg.MetricsEnabled)
	}
	if cfg.StorageBackend != storage.BackendFile || cfg.Encoder != "imaging" || cfg.NotifyMode != "scan" {
		t.Errorf("backend=%s encoder=%s notify=%s", cfg.StorageBackend, cfg.Encoder, cfg.NotifyMode)
	}
	if cfg.NotifyTimeout != DefaultNotifyTimeout || cfg.IndexInterval != DefaultIndexInterval {
		t.Errorf("timeouts = %v %v", cfg.NotifyTimeout, cfg.IndexInterval)
	}
	if cfg.IndexWorkers != 0 || cfg.IndexQueueSize != DefaultQueueSize {
		t.Errorf("workers=%d queue=%d", cfg.IndexWorkers, cfg.IndexQueueSize)
	}
	if cfg.MaxUploadBytes != 64<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if len(cfg.SourceDirs) != 0 {
		t.Errorf("SourceDirs = %v, want none", cfg.SourceDirs)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "gallery")
	t.Setenv("S3_PREFIX", "public")
	t.Setenv("ENCODER", "vips")
	t.Setenv("NOTIFY_MODE", "broadcast")
	t.Setenv("NOTIFY_TIMEOUT", "250ms")
	t.Setenv("INDEX_WORKERS", "3")
	t.Setenv("MAX_UPLOAD_MB", "8")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SOURCE_DIRS", " /srv/exports, ,/tmp/uploads ")

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}
	if cfg.StorageBackend != storage.BackendS3 || cfg.S3.Bucket != "gallery" || cfg.S3.Prefix != "public" {
		t.Errorf("storage = %s %+v", cfg.StorageBackend, cfg.S3)
	}
	if cfg.Encoder != "vips" || cfg.NotifyMode != "broadcast" || cfg.NotifyTimeout != 250*time.Millisecond {
		t.Errorf("encoder=%s notify=%s timeout=%v", cfg.Encoder, cfg.NotifyMode, cfg.NotifyTimeout)
	}
	if cfg.IndexWorkers != 3 || cfg.MaxUploadBytes != 8<<20 || cfg.MetricsEnabled {
		t.Errorf("workers=%d upload=%d metrics=%v", cfg.IndexWorkers, cfg.MaxUploadBytes, cfg.MetricsEnabled)
	}

	if got := strings.Join(cfg.SourceDirs, "|"); got != "/srv/exports|/tmp/uploads" {
		t.Errorf("SourceDirs = %q", got)
	}

	sc := cfg.StorageConfig()
	if sc.Backend != storage.BackendS3 || sc.S3.Bucket != "gallery" {
		t.Errorf("StorageConfig() = %+v", sc)
	}
}

func TestConfigFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "ftp"}, "STORAGE_BACKEND"},
		{"s3 without bucket", map[string]string{"STORAGE_BACKEND": "s3"}, "S3_BUCKET"},
		{"unknown encoder", map[string]string{"ENCODER": "magick"}, "ENCODER"},
		{"unknown notify mode", map[string]string{"NOTIFY_MODE": "email"}, "NOTIFY_MODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := configFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestConfigFromEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTIFY_TIMEOUT", "-1s")
	t.Setenv("INDEX_INTERVAL", "soon")
	t.Setenv("INDEX_QUEUE_SIZE", "0")
	t.Setenv("MAX_UPLOAD_MB", "lots")

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}
	if cfg.NotifyTimeout != DefaultNotifyTimeout {
		t.Errorf("NotifyTimeout = %v", cfg.NotifyTimeout)
	}
	if cfg.IndexInterval != DefaultIndexInterval {
		t.Errorf("IndexInterval = %v", cfg.IndexInterval)
	}
	if cfg.IndexQueueSize != DefaultQueueSize {
		t.Errorf("IndexQueueSize = %d", cfg.IndexQueueSize)
	}
	if cfg.MaxUploadBytes != DefaultMaxUploadMB<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	t.Setenv("PUBLIC_DIR", filepath.Join(base, "public"))
	t.Setenv("CACHE_DIR", filepath.Join(base, "cache"))
	t.Setenv("DATABASE_DIR", filepath.Join(base, "db"))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabasePath != filepath.Join(base, "db", "media.db") {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if !cfg.ThumbnailsEnabled {
		t.Error("thumbnails should be enabled with a writable cache")
	}
	for _, dir := range []string{cfg.PublicDir, cfg.DatabaseDir, cfg.ThumbnailDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}

func TestLoadConfigPublicDirIsFile(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	file := filepath.Join(base, "public")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PUBLIC_DIR", file)
	t.Setenv("CACHE_DIR", filepath.Join(base, "cache"))
	t.Setenv("DATABASE_DIR", filepath.Join(base, "db"))

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error when PUBLIC_DIR is a file")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_BOOL", "nope")
	if !getEnvBool("TEST_BOOL", true) {
		t.Error("invalid bool should fall back to default")
	}
	t.Setenv("TEST_BOOL", "false")
	if getEnvBool("TEST_BOOL", true) {
		t.Error("false not parsed")
	}

	t.Setenv("TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}

	t.Setenv("TEST_DURATION", "90s")
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}

	t.Setenv("TEST_STRING", "")
	if got := getEnv("TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("getEnv = %q", got)
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/save-file", nil).Methods("POST").Name("save-file")
	router.HandleFunc("/health", nil).Methods("GET", "HEAD")

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("got %d routes, want 3: %+v", len(routes), routes)
	}
	if routes[0].Method != "POST" || routes[0].Path != "/api/save-file" || routes[0].Name != "save-file" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/api/assets/{id}": "api/assets",
		"/api/publish":     "api/publish",
		"/health":          "health",
		"/":                "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}
