package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/labstack/echo/v4"
)

func TestStaticHandler(t *testing.T) {
	staticFS := fstest.MapFS{
		"index.html":       {Data: []byte("<html>app</html>")},
		"assets/app.js":    {Data: []byte("console.log(1)")},
		"docs/index.html":  {Data: []byte("<html>docs</html>")},
		"images/cover.png": {Data: []byte("png")},
	}

	e := echo.New()
	e.GET("/*", staticHandler(staticFS))

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "<html>app</html>"},
		{"/assets/app.js", http.StatusOK, "console.log(1)"},
		{"/editor/session/42", http.StatusOK, "<html>app</html>"},
		{"/images", http.StatusOK, "<html>app</html>"},
		{"/api/missing", http.StatusNotFound, ""},
		{"/upload/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestHasEmbeddedFiles(t *testing.T) {
	// Source checkouts only carry the dist placeholder.
	if HasEmbeddedFiles() {
		if _, err := GetFileSystem(); err != nil {
			t.Fatalf("embedded build has no usable filesystem: %v", err)
		}
		return
	}
	if _, err := staticFiles.ReadFile("dist/.gitkeep"); err != nil {
		t.Errorf("expected dist placeholder in embedded files: %v", err)
	}
}
