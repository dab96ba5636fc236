package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"media-publisher/internal/database"
	"media-publisher/internal/indexer"
	"media-publisher/internal/media"
	"media-publisher/internal/publisher"
	"media-publisher/internal/startup"
	"media-publisher/internal/storage"
)

type testEnv struct {
	h      *Handlers
	db     *database.Database
	root   string
	router http.Handler
}

func setupTestHandlers(t *testing.T, thumbsEnabled bool) *testEnv {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	root := t.TempDir()
	thumbs := media.NewThumbnailGenerator(t.TempDir(), thumbsEnabled)
	idx := indexer.New(db, nil, indexer.Config{Root: root, Workers: 2, SweepInterval: -1})
	idx.Start()
	t.Cleanup(idx.Stop)

	clock := func() time.Time { return time.UnixMilli(1700000000000) }
	pub := publisher.New(publisher.Options{
		Backend:  storage.NewRecordBackend(db, root, clock),
		Notifier: idx,
	})

	h := New(db, idx, pub, thumbs, &startup.Config{MaxUploadBytes: 1 << 20})
	return &testEnv{h: h, db: db, root: root, router: h.Router()}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) postJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodPost, path, "application/json", body)
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) publisher.Result {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	var res publisher.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode result %q: %v", rr.Body.String(), err)
	}
	return res
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSaveFile(t *testing.T) {
	env := setupTestHandlers(t, false)
	src := writeFile(t, t.TempDir(), "clip.mp4", []byte("video bytes"))

	res := decodeResult(t, env.postJSON(t, "/api/save-file", SaveFileRequest{File: src, Name: "Clip"}))
	if !res.Success {
		t.Fatalf("save-file failed: %s", res.ErrorMessage)
	}
	if !strings.HasPrefix(res.Location, "content://media/external/video/media/") {
		t.Errorf("filePath = %q, want a video content URI", res.Location)
	}
}

func TestSaveFileFailureIsResult(t *testing.T) {
	env := setupTestHandlers(t, false)

	rr := env.postJSON(t, "/api/save-file", SaveFileRequest{File: filepath.Join(t.TempDir(), "missing.jpg")})
	res := decodeResult(t, rr)
	if res.Success || res.Location != "" {
		t.Fatalf("result = %+v, want a failure without location", res)
	}
	if got := rr.Header().Get("X-Publish-Error"); got != publisher.CodeSourceNotFound {
		t.Errorf("X-Publish-Error = %q, want %q", got, publisher.CodeSourceNotFound)
	}
}

func TestMalformedBodies(t *testing.T) {
	env := setupTestHandlers(t, false)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"save-file not json", "/api/save-file", "{"},
		{"save-file empty", "/api/save-file", ""},
		{"save-file unknown field", "/api/save-file", `{"file":"a","extra":1}`},
		{"save-image bad base64", "/api/save-image", `{"imageBytes":"***"}`},
		{"refresh trailing data", "/api/refresh-gallery", `{"path":"a"}{"path":"b"}`},
		{"publish wrong type", "/api/publish", `{"quality":"high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, "application/json", []byte(tt.body))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), `"error"`) {
				t.Errorf("body = %s, want a JSON error", rr.Body.String())
			}
		})
	}
}

func TestSaveImageJSON(t *testing.T) {
	env := setupTestHandlers(t, false)
	quality := 90

	res := decodeResult(t, env.postJSON(t, "/api/save-image", SaveImageRequest{
		ImageBytes: testPNG(t),
		Quality:    &quality,
		Name:       "Sunset",
	}))
	if !res.Success {
		t.Fatalf("save-image failed: %s", res.ErrorMessage)
	}

	var id int64
	if _, err := fmt.Sscanf(res.Location, "content://media/external/images/media/%d", &id); err != nil {
		t.Fatalf("filePath %q is not an image URI: %v", res.Location, err)
	}
	rec, err := env.db.GetRecord(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MimeType != "image/jpeg" || rec.DisplayName != "Sunset" {
		t.Errorf("record = %+v, want image/jpeg named Sunset", rec)
	}
}

func TestSaveImageMultipart(t *testing.T) {
	env := setupTestHandlers(t, false)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(testPNG(t)); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("quality", "75"); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("name", "Upload"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	res := decodeResult(t, env.do(t, http.MethodPost, "/api/save-image", mw.FormDataContentType(), body.Bytes()))
	if !res.Success {
		t.Fatalf("multipart save-image failed: %s", res.ErrorMessage)
	}
}

func TestSaveImageMultipartErrors(t *testing.T) {
	env := setupTestHandlers(t, false)

	tests := []struct {
		name   string
		fields map[string]string
		file   bool
	}{
		{"missing image part", map[string]string{"quality": "80"}, false},
		{"quality not a number", map[string]string{"quality": "best"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			if tt.file {
				part, err := mw.CreateFormFile("image", "a.png")
				if err != nil {
					t.Fatal(err)
				}
				_, _ = part.Write(testPNG(t))
			}
			for k, v := range tt.fields {
				_ = mw.WriteField(k, v)
			}
			_ = mw.Close()

			rr := env.do(t, http.MethodPost, "/api/save-image", mw.FormDataContentType(), body.Bytes())
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestSaveImageInvalidPayload(t *testing.T) {
	env := setupTestHandlers(t, false)

	rr := env.postJSON(t, "/api/save-image", SaveImageRequest{ImageBytes: []byte("definitely not pixels")})
	res := decodeResult(t, rr)
	if res.Success {
		t.Fatal("expected failure for garbage payload")
	}
	if got := rr.Header().Get("X-Publish-Error"); got != publisher.CodeInvalidImage {
		t.Errorf("X-Publish-Error = %q, want %q", got, publisher.CodeInvalidImage)
	}
}

func TestSaveImageTooLarge(t *testing.T) {
	env := setupTestHandlers(t, false)
	env.h.maxUploadBytes = 1024

	rr := env.postJSON(t, "/api/save-image", SaveImageRequest{ImageBytes: bytes.Repeat([]byte{0xff}, 200000)})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "exceeds") {
		t.Errorf("body = %s, want a size error", rr.Body.String())
	}
}

func TestPublishUnified(t *testing.T) {
	env := setupTestHandlers(t, false)
	quality := 50
	src := writeFile(t, t.TempDir(), "note.jpg", []byte("jpeg-ish"))

	tests := []struct {
		name     string
		req      publisher.PublishRequest
		wantOK   bool
		wantCode string
	}{
		{"copy", publisher.PublishRequest{Path: src, Copy: true}, true, ""},
		{"image", publisher.PublishRequest{ImageBytes: testPNG(t), Quality: &quality}, true, ""},
		{"both", publisher.PublishRequest{Path: src, ImageBytes: []byte{1}}, false, publisher.CodeInvalidArgument},
		{"neither", publisher.PublishRequest{}, false, publisher.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.postJSON(t, "/api/publish", tt.req)
			res := decodeResult(t, rr)
			if res.Success != tt.wantOK {
				t.Fatalf("success = %v, want %v (%s)", res.Success, tt.wantOK, res.ErrorMessage)
			}
			if got := rr.Header().Get("X-Publish-Error"); got != tt.wantCode {
				t.Errorf("X-Publish-Error = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

// publishedSize publishes body to /api/publish and returns the stored size.
func (e *testEnv) publishedSize(t *testing.T, body string) int64 {
	t.Helper()
	res := decodeResult(t, e.do(t, http.MethodPost, "/api/publish", "application/json", []byte(body)))
	if !res.Success {
		t.Fatalf("publish %s failed: %s", body, res.ErrorMessage)
	}
	id, err := strconv.ParseInt(res.Location[strings.LastIndex(res.Location, "/")+1:], 10, 64)
	if err != nil {
		t.Fatalf("location %q has no id: %v", res.Location, err)
	}
	rec, err := e.db.GetRecord(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return rec.Size
}

func TestPublishImageDefaultQuality(t *testing.T) {
	env := setupTestHandlers(t, false)
	encoded, err := json.Marshal(testPNG(t))
	if err != nil {
		t.Fatal(err)
	}

	omitted := env.publishedSize(t, fmt.Sprintf(`{"imageBytes":%s,"name":"omitted"}`, encoded))
	explicit := env.publishedSize(t, fmt.Sprintf(`{"imageBytes":%s,"quality":%d,"name":"explicit"}`, encoded, publisher.DefaultQuality))
	lowest := env.publishedSize(t, fmt.Sprintf(`{"imageBytes":%s,"quality":1,"name":"lowest"}`, encoded))

	if omitted != explicit {
		t.Errorf("size without quality = %d, want %d (quality %d)", omitted, explicit, publisher.DefaultQuality)
	}
	if omitted == lowest {
		t.Errorf("size without quality = %d matches quality 1", omitted)
	}
}

func TestRefreshGallery(t *testing.T) {
	env := setupTestHandlers(t, false)
	path := writeFile(t, env.root, "existing.png", testPNG(t))

	rr := env.postJSON(t, "/api/refresh-gallery", RefreshRequest{Path: path})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp["uri"], "content://media/external/images/media/") {
		t.Errorf("uri = %q, want an image content URI", resp["uri"])
	}
}

func TestRefreshGalleryErrors(t *testing.T) {
	env := setupTestHandlers(t, false)
	outside := writeFile(t, t.TempDir(), "elsewhere.png", testPNG(t))
	if err := os.Mkdir(filepath.Join(env.root, "album"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"empty path", "", http.StatusBadRequest},
		{"missing file", filepath.Join(env.root, "gone.png"), http.StatusNotFound},
		{"outside root", outside, http.StatusBadRequest},
		{"directory", filepath.Join(env.root, "album"), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.postJSON(t, "/api/refresh-gallery", RefreshRequest{Path: tt.path})
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestRefreshStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{publisher.ErrInvalidArgument, http.StatusBadRequest},
		{publisher.ErrSourceNotFound, http.StatusNotFound},
		{publisher.ErrSourceUnreadable, http.StatusUnprocessableEntity},
		{publisher.ErrNotifyTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{publisher.ErrInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := refreshStatus(fmt.Errorf("wrapped: %w", tt.err)); got != tt.want {
			t.Errorf("refreshStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestListAndGetAssets(t *testing.T) {
	env := setupTestHandlers(t, false)
	img := writeFile(t, t.TempDir(), "a.png", testPNG(t))
	vid := writeFile(t, t.TempDir(), "b.mp4", []byte("video"))
	for _, src := range []string{img, vid} {
		if res := decodeResult(t, env.postJSON(t, "/api/save-file", SaveFileRequest{File: src})); !res.Success {
			t.Fatalf("publish %s: %s", src, res.ErrorMessage)
		}
	}

	rr := env.do(t, http.MethodGet, "/api/assets?kind=video", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var list database.RecordList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].Kind != "video" {
		t.Fatalf("list = %+v, want one video", list)
	}

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/assets/%d", list.Items[0].ID), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GetAsset status = %d, want 200", rr.Code)
	}
	var asset struct {
		ID  int64  `json:"id"`
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &asset); err != nil {
		t.Fatal(err)
	}
	if want := database.ContentURI("video", list.Items[0].ID); asset.URI != want {
		t.Errorf("uri = %q, want %q", asset.URI, want)
	}
}

func TestGetAssetByPath(t *testing.T) {
	env := setupTestHandlers(t, false)
	src := writeFile(t, t.TempDir(), "c.png", testPNG(t))
	if res := decodeResult(t, env.postJSON(t, "/api/save-file", SaveFileRequest{File: src})); !res.Success {
		t.Fatalf("publish failed: %s", res.ErrorMessage)
	}
	list, err := env.db.ListRecords(context.Background(), database.ListOptions{})
	if err != nil || len(list.Items) != 1 {
		t.Fatalf("ListRecords = %+v, %v", list, err)
	}
	stored := list.Items[0]

	rr := env.do(t, http.MethodGet, "/api/assets/by-path?path="+url.QueryEscape(stored.DataPath), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	var asset struct {
		ID  int64  `json:"id"`
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &asset); err != nil {
		t.Fatal(err)
	}
	if asset.ID != stored.ID || asset.URI != stored.URI() {
		t.Errorf("asset = %+v, want id %d uri %s", asset, stored.ID, stored.URI())
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"unknown path", "?path=" + url.QueryEscape(filepath.Join(env.root, "missing.png")), http.StatusNotFound},
		{"relative path", "?path=pictures/c.png", http.StatusBadRequest},
		{"no path", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, "/api/assets/by-path"+tt.query, "", nil)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestAssetRequestErrors(t *testing.T) {
	env := setupTestHandlers(t, false)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad kind", "/api/assets?kind=audio", http.StatusBadRequest},
		{"negative limit", "/api/assets?limit=-1", http.StatusBadRequest},
		{"bad offset", "/api/assets?offset=x", http.StatusBadRequest},
		{"unknown id", "/api/assets/999", http.StatusNotFound},
		{"zero id", "/api/assets/0", http.StatusBadRequest},
		{"non-numeric id", "/api/assets/abc", http.StatusNotFound},
		{"thumbnails disabled", "/api/thumbnail/1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path, "", nil)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestGetThumbnail(t *testing.T) {
	env := setupTestHandlers(t, true)
	src := writeFile(t, t.TempDir(), "pic.png", testPNG(t))
	res := decodeResult(t, env.postJSON(t, "/api/save-file", SaveFileRequest{File: src}))
	if !res.Success {
		t.Fatalf("publish failed: %s", res.ErrorMessage)
	}
	var id int64
	if _, err := fmt.Sscanf(res.Location, "content://media/external/images/media/%d", &id); err != nil {
		t.Fatal(err)
	}

	rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/thumbnail/%d", id), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(rr.Body.Bytes())); err != nil {
		t.Errorf("thumbnail is not a decodable image: %v", err)
	}

	rr = env.do(t, http.MethodGet, "/api/thumbnail/424242", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown thumbnail status = %d, want 404", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := setupTestHandlers(t, false)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	var health HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != statusHealthy || !health.Ready || health.Backend != storage.BackendRecord || health.Database != "ok" {
		t.Errorf("health = %+v", health)
	}

	rr = env.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rr.Code)
	}

	rr = env.do(t, http.MethodHead, "/livez", "", nil)
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Errorf("HEAD /livez = %d with %d body bytes, want 200 and no body", rr.Code, rr.Body.Len())
	}
	rr = env.do(t, http.MethodGet, "/livez", "", nil)
	if !strings.Contains(rr.Body.String(), "alive") {
		t.Errorf("GET /livez body = %s", rr.Body.String())
	}
}

func TestHealthNotReady(t *testing.T) {
	env := setupTestHandlers(t, false)
	env.h.indexer.Stop()

	for _, path := range []string{"/health", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rr.Code)
		}
	}
}

func TestVersion(t *testing.T) {
	env := setupTestHandlers(t, false)

	rr := env.do(t, http.MethodGet, "/version", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	var info map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["version"] != startup.Version {
		t.Errorf("version = %v, want %q", info["version"], startup.Version)
	}
}

func TestRouterFallbacks(t *testing.T) {
	env := setupTestHandlers(t, false)

	if rr := env.do(t, http.MethodGet, "/api/save-file", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/save-file = %d, want 405", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/nope", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", rr.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	env := setupTestHandlers(t, false)

	rr := httptest.NewRecorder()
	env.h.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("metrics output is missing runtime collectors")
	}
}
