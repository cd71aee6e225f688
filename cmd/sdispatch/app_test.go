package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Suhaibinator/SDispatch/internal/config"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Addr:             ":0",
		ShutdownTimeout:  time.Second,
		Timeout:          time.Second,
		MaxBodySize:      1 << 10,
		PostHooksOnError: "always",
		RateLimit:        0,
		MetricsPath:      "/metrics",
		EnableMetrics:    true,
		EnableTraceID:    true,
		LogLevel:         "info",
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *router.Router {
	t.Helper()
	a := newApp(cfg, zap.NewNop(), "secret")
	store, err := a.store()
	if err != nil {
		t.Fatalf("Failed to build store: %v", err)
	}
	r, err := a.router(store)
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	return r
}

func do(r http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestNotesLifecycle(t *testing.T) {
	r := newTestRouter(t, testConfig())
	auth := map[string]string{"Authorization": "Bearer secret", "Content-Type": "application/json"}

	rr := do(r, http.MethodPost, "/admin/notes", `{"title":"groceries","body":"milk"}`, map[string]string{"Content-Type": "application/json"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status %d without token, got %d", http.StatusUnauthorized, rr.Code)
	}

	rr = do(r, http.MethodPost, "/admin/notes", `{"title":"groceries","body":"milk"}`, auth)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var created note
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode note: %v", err)
	}
	if created.Author != "admin" || created.Title != "groceries" {
		t.Errorf("Unexpected note %+v", created)
	}
	if loc := rr.Header().Get("Location"); loc != "/notes/"+created.ID.String() {
		t.Errorf("Expected Location header for the note, got %q", loc)
	}
	if rr.Header().Get("Server-Timing") == "" {
		t.Error("Expected Server-Timing header from the timing hook")
	}

	rr = do(r, http.MethodGet, "/notes/"+created.ID.String(), "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = do(r, http.MethodGet, "/notes?limit=0", "", nil)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty list with limit=0, got %q", rr.Body.String())
	}
	rr = do(r, http.MethodGet, "/notes?limit=x", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for bad limit, got %d", http.StatusBadRequest, rr.Code)
	}

	rr = do(r, http.MethodDelete, "/admin/notes/"+created.ID.String(), "", auth)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	rr = do(r, http.MethodGet, "/notes/"+created.ID.String(), "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d after delete, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestCreateNoteRequiresTitle(t *testing.T) {
	r := newTestRouter(t, testConfig())
	rr := do(r, http.MethodPost, "/admin/notes", `not json`, map[string]string{
		"Authorization": "Bearer secret",
		"Content-Type":  "application/json",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for malformed body, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestPrefsCookie(t *testing.T) {
	r := newTestRouter(t, testConfig())

	rr := do(r, http.MethodGet, "/prefs", "", map[string]string{"Cookie": "theme=DARK"})
	if !strings.Contains(rr.Body.String(), `"theme":"dark"`) {
		t.Errorf("Expected dark theme, got %q", rr.Body.String())
	}
	rr = do(r, http.MethodGet, "/prefs", "", nil)
	if !strings.Contains(rr.Body.String(), `"theme":"light"`) {
		t.Errorf("Expected default theme, got %q", rr.Body.String())
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1
	cfg.RateWindow = time.Hour
	r := newTestRouter(t, cfg)

	if rr := do(r, http.MethodGet, "/notes", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rr.Code)
	}
	if rr := do(r, http.MethodGet, "/notes", "", nil); rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status %d, got %d", http.StatusTooManyRequests, rr.Code)
	}
	if rr := do(r, http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Errorf("Expected health to bypass the limiter, got %d", rr.Code)
	}
}

func TestManifestRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	manifest := `
routes:
  - controller: health
    action: check
    method: GET
    path: /healthz
    handler: health
  - controller: prefs
    method: GET
    path: /prefs
    handler: prefs
    params:
      - index: 0
        kind: cookie
        name: theme
hooks:
  - name: timing
    hook: timing
    pattern: ^/
`
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	cfg := testConfig()
	cfg.Manifest = path
	r := newTestRouter(t, cfg)

	if rr := do(r, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr := do(r, http.MethodGet, "/health", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected built-in routes to be replaced, got %d", rr.Code)
	}

	var buf bytes.Buffer
	store, err := newApp(cfg, zap.NewNop(), "-").store()
	if err != nil {
		t.Fatalf("Failed to load manifest: %v", err)
	}
	printRoutes(&buf, store, true)
	out := buf.String()
	for _, want := range []string{"/healthz", "health.check", "0:cookie(theme)", "timing"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected routes output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPrintRoutesBuiltin(t *testing.T) {
	a := newApp(testConfig(), zap.NewNop(), "-")
	store, err := a.store()
	if err != nil {
		t.Fatalf("Failed to build store: %v", err)
	}

	var buf bytes.Buffer
	printRoutes(&buf, store, true)
	out := buf.String()

	if !strings.HasPrefix(out, "METHOD") {
		t.Errorf("Expected header row first, got:\n%s", out)
	}
	if !strings.Contains(out, "admin/notes.create") || !strings.Contains(out, "0:body|note") {
		t.Errorf("Expected admin create route with body transform, got:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "admin/notes.create") && !strings.Contains(line, "auth") {
			t.Errorf("Expected auth hook on admin route, got %q", line)
		}
	}
}

func TestAdminToken(t *testing.T) {
	var stderr bytes.Buffer
	if got := adminToken("given", &stderr); got != "given" {
		t.Errorf("Expected the given token, got %q", got)
	}
	if stderr.Len() != 0 {
		t.Errorf("Expected nothing printed for a given token, got %q", stderr.String())
	}

	got := adminToken("", &stderr)
	if got == "" {
		t.Fatal("Expected a generated token")
	}
	if stderr.String() != "Generated admin token: "+got+"\n" {
		t.Errorf("Expected the generated token on stderr once, got %q", stderr.String())
	}
}
