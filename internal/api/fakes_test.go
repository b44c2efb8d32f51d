package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/audio"
	"github.com/audio-tag-editor/backend/internal/downloader"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/session"
	"github.com/audio-tag-editor/backend/internal/testutil"
	"github.com/audio-tag-editor/backend/internal/upload"
)

// fakeAudio stands in for the tag service. Paths containing "broken" are unreadable.
type fakeAudio struct {
	mu       sync.Mutex
	applied  map[string]*models.AudioMetadata
	covers   map[string]string // path -> mime
	meta     models.AudioMetadata
	applyErr error
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{
		applied: make(map[string]*models.AudioMetadata),
		covers:  make(map[string]string),
		meta:    models.AudioMetadata{Title: "Song", Artist: "Band", Duration: 180},
	}
}

func (f *fakeAudio) Extract(path string) (*models.AudioMetadata, error) {
	if strings.Contains(path, "broken") {
		return nil, audio.ErrUnreadable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.applied[path]; ok {
		copied := *m
		return &copied, nil
	}
	copied := f.meta
	return &copied, nil
}

func (f *fakeAudio) Apply(path string, meta *models.AudioMetadata) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *meta
	f.applied[path] = &copied
	return nil
}

func (f *fakeAudio) SetCover(path string, data []byte, mime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.covers[path] = mime
	return nil
}

func (f *fakeAudio) appliedTo(path string) *models.AudioMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[path]
}

// fakeDownloader writes a small file for every Download call.
type fakeDownloader struct {
	dir     string
	info    models.DownloadInfo
	err     error
	entries []models.PlaylistEntry
	cleaned int
	mu      sync.Mutex
}

func (d *fakeDownloader) Download(ctx context.Context, url string) (*models.DownloadInfo, error) {
	if d.err != nil {
		return nil, d.err
	}
	info := d.info
	info.URL = url
	info.FilePath = filepath.Join(d.dir, info.Filename)
	if err := os.WriteFile(info.FilePath, []byte("downloaded audio"), 0o600); err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *fakeDownloader) Probe(ctx context.Context, url string) (*models.DownloadInfo, error) {
	info := d.info
	return &info, d.err
}

func (d *fakeDownloader) PlaylistItems(ctx context.Context, url string) ([]models.PlaylistEntry, error) {
	if downloader.PlaylistID(url) == "" {
		return nil, downloader.ErrNoPlaylist
	}
	return d.entries, nil
}

func (d *fakeDownloader) SelfTest(ctx context.Context) *downloader.SelfTestReport {
	return &downloader.SelfTestReport{Success: true, Message: "ok", MaxDuration: 600}
}

func (d *fakeDownloader) Cleanup(info *models.DownloadInfo) {
	d.mu.Lock()
	d.cleaned++
	d.mu.Unlock()
	os.Remove(info.FilePath)
}

// fakeHistory returns canned records.
type fakeHistory struct {
	records []models.EditRecord
	err     error
	limit   int
	file    string
}

func (h *fakeHistory) ForSession(ctx context.Context, sessionID string, limit int) ([]models.EditRecord, error) {
	h.limit = limit
	return h.records, h.err
}

func (h *fakeHistory) ForFile(ctx context.Context, stored string, limit int) ([]models.EditRecord, error) {
	h.file, h.limit = stored, limit
	return h.records, h.err
}

type testEnv struct {
	store    *testutil.MockStorage
	audio    *fakeAudio
	sessions *session.Manager
	uploads  *upload.Manager
	dl       *fakeDownloader
	deps     *Dependencies
	e        *echo.Echo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewMockStorage()
	fa := newFakeAudio()
	sessions := session.NewManager(store, fa, nil, session.Config{Debounce: 20 * time.Millisecond})
	uploads := upload.NewManager(store, fa, sessions)
	dl := &fakeDownloader{
		dir: t.TempDir(),
		info: models.DownloadInfo{
			Platform: models.PlatformYouTube,
			Title:    "Remote Song",
			Uploader: "Channel",
			Duration: 200,
			Filename: "Remote Song.mp3",
			Method:   "yt-dlp",
		},
	}

	deps := &Dependencies{
		Store:               store,
		Sessions:            sessions,
		Uploads:             uploads,
		Audio:               fa,
		Downloader:          dl,
		Version:             "test",
		AllowWorkspaceClear: true,
		ThumbnailSize:       64,
		MaxDuration:         600,
	}

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(deps))

	return &testEnv{store: store, audio: fa, sessions: sessions, uploads: uploads, dl: dl, deps: deps, e: e}
}

// serve runs a request through the full router, error handler included.
func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(f.data)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func assertAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Status != status {
		t.Errorf("expected status %d, got %d (%s)", status, apiErr.Status, apiErr.Message)
	}
	if code != "" && apiErr.Code != code {
		t.Errorf("expected error code %s, got %s", code, apiErr.Code)
	}
}
