package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	attempts int
	success  int
	failures int
	stale    int
	ops      []string
}

func (r *recordingObserver) ObserveOperation(volume, operation string, _ float64, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, volume+":"+operation)
}

func (r *recordingObserver) ObserveRetryAttempt(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *recordingObserver) ObserveRetrySuccess(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success++
}

func (r *recordingObserver) ObserveRetryFailure(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingObserver) ObserveRetryDuration(_, _ string, _ float64) {}

func (r *recordingObserver) ObserveStaleError(_, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale++
}

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "open", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"public":     "/media",
		"cache":      "/cache",
		"thumbnails": "/cache/thumbnails",
		"database":   "/database",
	})

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "public root", path: "/media", want: "public"},
		{name: "public file", path: "/media/pictures/1.jpg", want: "public"},
		{name: "similar prefix is not a match", path: "/media-old/file.jpg", want: "unknown"},
		{name: "cache file", path: "/cache/other", want: "cache"},
		{name: "longest prefix wins", path: "/cache/thumbnails/1.jpg", want: "thumbnails"},
		{name: "database file", path: "/database/media.db", want: "database"},
		{name: "unmatched", path: "/etc/hosts", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestVolumeResolver_Resolve_NilResolver(t *testing.T) {
	var vr *VolumeResolver
	if got := vr.Resolve("/media/test.jpg"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want %q", got, "unknown")
	}
}

func TestRetryConfig_ResolveVolume_UsesConfigResolver(t *testing.T) {
	original := defaultResolver
	defer func() { defaultResolver = original }()

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"default-public": "/media"}))

	config := fastConfig()
	config.VolumeResolver = NewVolumeResolver(map[string]string{"override-public": "/media"})

	if got := config.resolveVolume("/media/test.jpg"); got != "override-public" {
		t.Errorf("resolveVolume() = %q, want %q", got, "override-public")
	}

	config.VolumeResolver = nil
	if got := config.resolveVolume("/media/test.jpg"); got != "default-public" {
		t.Errorf("resolveVolume() = %q, want %q", got, "default-public")
	}
}

func TestWithRetry_RetriesStaleThenSucceeds(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	got, err := withRetry("open", "/media/x.jpg", fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &os.PathError{Op: "open", Path: "/media/x.jpg", Err: syscall.ESTALE}
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got != 42 {
		t.Errorf("withRetry() = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.stale != 2 || obs.attempts != 2 || obs.success != 1 {
		t.Errorf("observer stale=%d attempts=%d success=%d, want 2/2/1", obs.stale, obs.attempts, obs.success)
	}
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	_, err := withRetry("stat", "/media/x.jpg", fastConfig(), func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})

	if !errors.Is(err, syscall.ESTALE) {
		t.Errorf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestWithRetry_NonStaleErrorFailsFast(t *testing.T) {
	calls := 0
	_, err := withRetry("stat", "/media/x.jpg", fastConfig(), func() (int, error) {
		calls++
		return 0, os.ErrPermission
	})

	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("withRetry() error = %v, want ErrPermission", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStatWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := StatWithRetry(testFile, fastConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("FileInfo.Size() = %d, want 4", info.Size())
	}

	_, err = StatWithRetry(filepath.Join(tmpDir, "missing.txt"), fastConfig())
	if !os.IsNotExist(err) {
		t.Errorf("StatWithRetry() error = %v, want not-exist", err)
	}
}

func TestOpenWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	f, err := OpenWithRetry(testFile, fastConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v", err)
	}
	defer f.Close()

	buf := make([]byte, 5)
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("content = %q, want hello", buf)
	}
}

func TestCreateExclusiveWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "new.jpg")

	f, err := CreateExclusiveWithRetry(path, 0o644, fastConfig())
	if err != nil {
		t.Fatalf("CreateExclusiveWithRetry() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err = CreateExclusiveWithRetry(path, 0o644, fastConfig())
	if !errors.Is(err, os.ErrExist) {
		t.Errorf("second create error = %v, want os.ErrExist", err)
	}
}

func TestMkdirAllWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a", "b", "c")

	if err := MkdirAllWithRetry(path, 0o755, fastConfig()); err != nil {
		t.Fatalf("MkdirAllWithRetry() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory at %s, err=%v", path, err)
	}
}

func TestObserveOperation(t *testing.T) {
	original := defaultResolver
	defer func() { defaultResolver = original }()

	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	SetDefaultVolumeResolver(NewVolumeResolver(map[string]string{"public": "/media"}))
	ObserveOperation("/media/pictures/1.jpg", "write", time.Now(), nil)

	if len(obs.ops) != 1 || obs.ops[0] != "public:write" {
		t.Errorf("ops = %v, want [public:write]", obs.ops)
	}
}

func TestObserveOperation_NoObserver(t *testing.T) {
	SetObserver(nil)
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("ObserveOperation panicked without observer: %v", r)
		}
	}()
	ObserveOperation("/media/x", "stat", time.Now(), nil)
}
