package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_ServesEmbeddedAssets(t *testing.T) {
	handler := Handler("")

	tests := []struct {
		path string
		want string
	}{
		{"/", "<!DOCTYPE html>"},
		{"/app.js", "/api/v1"},
		{"/style.css", "border-collapse"},
		{"/devices/2CAA8E000001", "<!DOCTYPE html>"},
		{"/missing.js", "<!DOCTYPE html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, handler, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body does not contain %q", tt.want)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
				t.Errorf("Cache-Control = %q", got)
			}
		})
	}
}

func TestHandler_ServesDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<!DOCTYPE html><p>dev copy</p>"), 0o600); err != nil {
		t.Fatalf("writing index: %v", err)
	}

	w := get(t, Handler(dir), "/")
	if !strings.Contains(w.Body.String(), "dev copy") {
		t.Errorf("body = %q, want the directory copy", w.Body.String())
	}
}

func TestHandler_MissingDirectoryFallsBackToEmbedded(t *testing.T) {
	w := get(t, Handler(filepath.Join(t.TempDir(), "nope")), "/app.js")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/v1") {
		t.Errorf("status = %d, want embedded app.js", w.Code)
	}
}
