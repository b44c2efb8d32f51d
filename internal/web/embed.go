// Package web serves a frontend bundle compiled into the binary.
package web

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed all:dist
var staticFiles embed.FS

// backendPrefixes never fall back to the SPA index.
var backendPrefixes = []string{"/api/", "/upload/"}

// GetFileSystem returns the embedded filesystem with the dist folder as root.
func GetFileSystem() (fs.FS, error) {
	return fs.Sub(staticFiles, "dist")
}

// RegisterStaticRoutes registers the frontend static file routes with Echo.
// API routes must be registered first; unknown backend paths get a 404
// instead of the SPA index.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := GetFileSystem()
	if err != nil {
		return err
	}
	e.GET("/*", staticHandler(staticFS))
	return nil
}

func staticHandler(staticFS fs.FS) echo.HandlerFunc {
	fileServer := http.FileServer(http.FS(staticFS))

	return func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		for _, prefix := range backendPrefixes {
			if strings.HasPrefix(requestPath, prefix) {
				return echo.ErrNotFound
			}
		}

		name := strings.TrimPrefix(requestPath, "/")
		if name == "" {
			return serveIndexHTML(c, staticFS)
		}

		stat, err := fs.Stat(staticFS, name)
		if err != nil {
			// Client-side route
			return serveIndexHTML(c, staticFS)
		}
		if stat.IsDir() {
			if _, err := fs.Stat(staticFS, path.Join(name, "index.html")); err != nil {
				return serveIndexHTML(c, staticFS)
			}
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// serveIndexHTML serves the main index.html for SPA routing
func serveIndexHTML(c echo.Context, staticFS fs.FS) error {
	indexFile, err := staticFS.Open("index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	defer indexFile.Close()

	content, err := io.ReadAll(indexFile)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read index.html")
	}
	return c.HTMLBlob(http.StatusOK, content)
}

// HasEmbeddedFiles returns true if a built frontend was embedded.
func HasEmbeddedFiles() bool {
	_, err := fs.Stat(staticFiles, "dist/index.html")
	return err == nil
}
