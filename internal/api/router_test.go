package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timmy/stockmeta/internal/autosave"
	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/repository"
	"github.com/timmy/stockmeta/internal/service"
	"github.com/timmy/stockmeta/internal/storage"
)

const metadataJSON = `{"title":"Golden sunset over calm ocean waves with silhouetted palm trees on beach",` +
	`"description":"A warm tropical sunset reflecting on the water, framed by palm silhouettes along a quiet sandy shore.",` +
	`"keywords":["sunset","ocean","palm"],"category":"Nature"}`

type stubBackend struct {
	err error
}

func (b *stubBackend) Generate(_ context.Context, req *service.BackendRequest) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if req.JSONSchema {
		return metadataJSON, nil
	}
	return "A golden sunset over the ocean, photorealistic", nil
}

func (b *stubBackend) Name() string { return "stub" }

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

type idleClock struct{}

func (idleClock) AfterFunc(time.Duration, func()) autosave.Timer { return idleTimer{} }

type testServer struct {
	t       *testing.T
	handler http.Handler
	backend *stubBackend
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        ":memory:",
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	backend := &stubBackend{}
	modelCfg := &config.ModelConfig{
		Provider:     config.ProviderGenAI,
		QualityModel: "quality-model",
		FastModel:    "fast-model",
		TrendModel:   "trend-model",
		MaxRetries:   1,
		BackoffBase:  time.Millisecond,
	}
	gen := service.NewGenerationService(backend, modelCfg).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	settings := service.NewSettingsService(repository.NewSettingsRepository(db), apiKey, domain.ThemeDark)
	store := storage.NewMemoryStorage(storage.LocalBlobPath)

	ws := service.NewWorkspace(service.WorkspaceDeps{
		Repo:     repository.NewAssetRepository(db),
		Storage:  store,
		Gen:      gen,
		Trends:   service.NewTrendService(backend, modelCfg.TrendModel),
		Settings: settings,
		Clock:    idleClock{},
	}, service.WorkspaceConfig{Rename: true})
	if err := ws.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	router := SetupRouter(RouterDeps{
		Workspace: ws,
		Settings:  settings,
		Storage:   store,
		Server: &config.ServerConfig{
			Mode: "test",
			CORS: config.CORSConfig{AllowAllOrigins: true},
		},
		Backend: backend.Name(),
	})
	return &testServer{t: t, handler: router, backend: backend}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		data, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) upload(files map[string][]byte) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			s.t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/assets", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 20), B: uint8(y * 20), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type listResponse struct {
	Assets []struct {
		ID     string             `json:"id"`
		Status domain.AssetStatus `json:"status"`
		Error  string             `json:"error"`
	} `json:"assets"`
	Total int    `json:"total"`
	Mode  string `json:"mode"`
}

func (s *testServer) uploadPair() string {
	s.t.Helper()
	w := s.upload(map[string][]byte{
		"sunset.png": pngBytes(s.t),
		"sunset.eps": []byte("%!PS-Adobe-3.0 EPSF-3.0\n"),
	})
	if w.Code != http.StatusCreated {
		s.t.Fatalf("upload status = %d: %s", w.Code, w.Body.String())
	}
	var list listResponse
	w = s.do(http.MethodGet, "/api/v1/assets", nil)
	decode(s.t, w, &list)
	if list.Total != 1 {
		s.t.Fatalf("total = %d, want 1 paired asset", list.Total)
	}
	return list.Assets[0].ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := s.do(http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		var body map[string]string
		decode(t, w, &body)
		if body["status"] != "ok" || body["backend"] != "stub" {
			t.Errorf("%s body = %v", path, body)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, "")
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestSettingsAndSession(t *testing.T) {
	s := newTestServer(t, "")

	var info service.SessionInfo
	decode(t, s.do(http.MethodGet, "/api/v1/session", nil), &info)
	if info.Authenticated || info.Theme != domain.ThemeDark {
		t.Fatalf("initial session = %+v", info)
	}

	w := s.do(http.MethodPut, "/api/v1/settings/api-key", map[string]string{"api_key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("set key status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Error("api key echoed back")
	}
	decode(t, w, &info)
	if !info.Authenticated || info.KeySource != service.KeySourceSettings {
		t.Errorf("session after set = %+v", info)
	}

	if w := s.do(http.MethodPut, "/api/v1/settings/theme", map[string]string{"theme": "sepia"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid theme status = %d", w.Code)
	}
	if w := s.do(http.MethodPut, "/api/v1/settings/theme", map[string]string{"theme": "light"}); w.Code != http.StatusOK {
		t.Errorf("light theme status = %d", w.Code)
	}
	var theme map[string]string
	decode(t, s.do(http.MethodGet, "/api/v1/settings/theme", nil), &theme)
	if theme["theme"] != "light" {
		t.Errorf("theme = %q", theme["theme"])
	}

	decode(t, s.do(http.MethodDelete, "/api/v1/settings/api-key", nil), &info)
	if info.Authenticated {
		t.Errorf("session after clear = %+v", info)
	}
}

func TestGenerateWithoutKeyAsksForKey(t *testing.T) {
	s := newTestServer(t, "")
	id := s.uploadPair()

	w := s.do(http.MethodPost, "/api/v1/assets/"+id+"/generate", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	decode(t, w, &body)
	if body["prompt_api_key"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestGenerateInvalidKey(t *testing.T) {
	s := newTestServer(t, "bad-key")
	s.backend.err = &service.BackendError{StatusCode: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."}
	id := s.uploadPair()

	w := s.do(http.MethodPost, "/api/v1/generate-all", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var list listResponse
	decode(t, s.do(http.MethodGet, "/api/v1/assets", nil), &list)
	if list.Assets[0].ID != id || list.Assets[0].Status != domain.AssetStatusError {
		t.Errorf("asset after invalid key = %+v", list.Assets[0])
	}
}

func TestGenerateEditAndExport(t *testing.T) {
	s := newTestServer(t, "key")
	id := s.uploadPair()

	w := s.do(http.MethodPost, "/api/v1/assets/"+id+"/generate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d: %s", w.Code, w.Body.String())
	}
	var asset struct {
		Status   domain.AssetStatus `json:"status"`
		Metadata *domain.Metadata   `json:"metadata"`
	}
	decode(t, w, &asset)
	if asset.Status != domain.AssetStatusCompleted || asset.Metadata == nil {
		t.Fatalf("asset = %+v", asset)
	}

	w = s.do(http.MethodPatch, "/api/v1/assets/"+id+"/draft", map[string]any{
		"field": "title",
		"text":  "Palm trees at dusk",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("edit status = %d: %s", w.Code, w.Body.String())
	}
	var draft struct {
		Pending bool             `json:"pending"`
		Buffer  *domain.Metadata `json:"buffer"`
	}
	decode(t, w, &draft)
	if !draft.Pending || draft.Buffer.Title != "Palm trees at dusk" {
		t.Errorf("draft = %+v", draft)
	}

	w = s.do(http.MethodGet, "/api/v1/export?rename=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "stock_assets_") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"metadata.csv", "Palm_trees_at_dusk.png", "Palm_trees_at_dusk.eps"} {
		if !names[want] {
			t.Errorf("archive is missing %q, has %v", want, names)
		}
	}
}

func TestExportErrors(t *testing.T) {
	s := newTestServer(t, "key")

	if w := s.do(http.MethodGet, "/api/v1/export", nil); w.Code != http.StatusConflict {
		t.Errorf("empty export status = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/export?rename=maybe", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad rename status = %d", w.Code)
	}
}

func TestAssetErrors(t *testing.T) {
	s := newTestServer(t, "key")
	id := s.uploadPair()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown asset", http.MethodGet, "/api/v1/assets/missing", nil, http.StatusNotFound},
		{"draft before generation", http.MethodGet, "/api/v1/assets/" + id + "/draft", nil, http.StatusConflict},
		{"bad field", http.MethodPatch, "/api/v1/assets/" + id + "/draft", map[string]string{"field": "author"}, http.StatusBadRequest},
		{"bad mode", http.MethodPut, "/api/v1/mode", map[string]string{"mode": "turbo"}, http.StatusBadRequest},
		{"bad bulk edit", http.MethodPost, "/api/v1/bulk-edit", map[string]any{"field": "title", "action": "ADD", "ids": []string{id}}, http.StatusBadRequest},
		{"no files", http.MethodPost, "/api/v1/assets", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestModeSwitchAndRemove(t *testing.T) {
	s := newTestServer(t, "key")
	id := s.uploadPair()

	if w := s.do(http.MethodPut, "/api/v1/mode", map[string]string{"mode": "quality"}); w.Code != http.StatusOK {
		t.Fatalf("set mode status = %d", w.Code)
	}
	var mode map[string]string
	decode(t, s.do(http.MethodGet, "/api/v1/mode", nil), &mode)
	if mode["mode"] != "quality" {
		t.Errorf("mode = %q", mode["mode"])
	}

	if w := s.do(http.MethodDelete, "/api/v1/assets/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", w.Code)
	}
	var list listResponse
	decode(t, s.do(http.MethodGet, "/api/v1/assets", nil), &list)
	if list.Total != 0 {
		t.Errorf("total after remove = %d", list.Total)
	}
}

func TestPrompt(t *testing.T) {
	s := newTestServer(t, "key")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "sunset.png")
	fw.Write(pngBytes(t))
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/prompts", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	decode(t, w, &body)
	if body["filename"] != "sunset.png" || !strings.Contains(body["prompt"], "sunset") {
		t.Errorf("body = %v", body)
	}
}
