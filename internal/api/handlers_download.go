// handlers_download.go - Serving workspace files and fetching audio from URLs
package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/audio"
	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/downloader"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

// DownloadHandlerImpl implements the DownloadHandler interface
type DownloadHandlerImpl struct {
	store       storage.Store
	audio       AudioService
	downloader  downloader.Downloader
	sessions    SessionManager
	maxDuration int
}

// NewDownloadHandler creates a new download handler instance
func NewDownloadHandler(deps *Dependencies) DownloadHandler {
	return &DownloadHandlerImpl{
		store:       deps.Store,
		audio:       deps.Audio,
		downloader:  deps.Downloader,
		sessions:    deps.Sessions,
		maxDuration: deps.MaxDuration,
	}
}

// HandleDownloadFile serves a workspace file under its original name
func (h *DownloadHandlerImpl) HandleDownloadFile(c echo.Context) error {
	stored := c.Param("filename")
	info, err := h.store.Get(stored)
	if err != nil {
		return NewNotFoundError("file", stored)
	}
	path, err := h.store.GetFilePath(stored)
	if err != nil {
		return NewNotFoundError("file", stored)
	}
	return c.Attachment(path, info.Filename)
}

// HandleDownloadLatest serves the most recent updated_ file. A session
// query parameter flushes that session's pending saves first.
func (h *DownloadHandlerImpl) HandleDownloadLatest(c echo.Context) error {
	if id := c.QueryParam("session"); id != "" && h.sessions != nil {
		if _, err := h.sessions.Flush(c.Request().Context(), id); err != nil {
			return fromError(err, "failed to save pending edits")
		}
	}

	info, err := h.store.Latest(storage.PrefixUpdated)
	if err != nil {
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "No updated files available"}
	}
	path, err := h.store.GetFilePath(info.StoredFilename)
	if err != nil {
		return NewNotFoundError("file", info.StoredFilename)
	}
	return c.Attachment(path, info.Filename)
}

// HandleDownloadYouTube fetches audio from a YouTube URL
func (h *DownloadHandlerImpl) HandleDownloadYouTube(c echo.Context) error {
	return h.fetch(c, models.PlatformYouTube)
}

// HandleDownloadSoundCloud fetches audio from a SoundCloud URL
func (h *DownloadHandlerImpl) HandleDownloadSoundCloud(c echo.Context) error {
	return h.fetch(c, models.PlatformSoundCloud)
}

func (h *DownloadHandlerImpl) fetch(c echo.Context, want models.Platform) error {
	if h.downloader == nil {
		return NewServiceUnavailableError("downloads are not available")
	}

	url := strings.TrimSpace(c.FormValue("url"))
	if url == "" {
		return NewValidationError("url")
	}
	platform, err := downloader.DetectPlatform(url)
	if err != nil || platform != want {
		return NewBadRequestError(downloader.UserMessage(downloader.ErrInvalidURL, h.maxDuration), err)
	}

	sessionID := sessionParam(c)
	if sessionID != "" && h.sessions != nil {
		if _, err := h.sessions.Get(sessionID); err != nil {
			return fromError(err, "session not found")
		}
	}

	info, err := h.downloader.Download(c.Request().Context(), url)
	if err != nil {
		fmt.Printf("[Downloader] %s download failed: %v\n", want, err)
		return fromError(err, downloader.UserMessage(err, h.maxDuration))
	}
	defer h.downloader.Cleanup(info)

	meta, err := h.audio.Extract(info.FilePath)
	if err != nil {
		debug.Printf("API", "downloaded file has no readable tags: %v", err)
		meta = &models.AudioMetadata{}
	}
	audio.MergeDownloaded(meta, info)

	// Bake the merged tags into the file so later downloads carry them
	if err := h.audio.Apply(info.FilePath, meta); err != nil {
		fmt.Printf("[Downloader] Warning: could not tag %s: %v\n", info.Filename, err)
	}

	src, err := os.Open(info.FilePath)
	if err != nil {
		return NewInternalError("failed to open downloaded file", err)
	}
	defer src.Close()

	stored, err := h.store.Save(string(platform), info.Filename, src)
	if err != nil {
		return NewInternalError("failed to store downloaded file", err)
	}

	resp := audioUploadResponse{
		Success:        true,
		Filename:       stored.StoredFilename,
		StoredFilename: stored.StoredFilename,
		Metadata:       meta,
		Message:        fmt.Sprintf("%s audio downloaded and metadata extracted successfully", platformLabel(platform)),
		Platform:       string(platform),
		OriginalURL:    url,
	}

	if sessionID != "" && h.sessions != nil {
		entry := models.NewFileMetadata(stored.Filename, stored.StoredFilename, meta, models.ProvenanceDownloaded)
		entry.Platform = string(platform)
		entry.OriginalURL = url
		snap, err := h.sessions.AddFiles(sessionID, []models.FileMetadata{entry})
		if err != nil {
			return fromError(err, "failed to add file to session")
		}
		resp.Session = snap
	}

	return c.JSON(http.StatusOK, resp)
}

func platformLabel(p models.Platform) string {
	switch p {
	case models.PlatformYouTube:
		return "YouTube"
	case models.PlatformSoundCloud:
		return "SoundCloud"
	}
	return string(p)
}

// HandleYouTubePlaylist lists the entries of a YouTube playlist
func (h *DownloadHandlerImpl) HandleYouTubePlaylist(c echo.Context) error {
	if h.downloader == nil {
		return NewServiceUnavailableError("downloads are not available")
	}
	url := strings.TrimSpace(c.QueryParam("url"))
	if url == "" {
		return NewValidationError("url")
	}

	entries, err := h.downloader.PlaylistItems(c.Request().Context(), url)
	if err != nil {
		return fromError(err, downloader.UserMessage(err, h.maxDuration))
	}
	if entries == nil {
		entries = []models.PlaylistEntry{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"playlist_id": downloader.PlaylistID(url),
		"count":       len(entries),
		"entries":     entries,
	})
}

// HandleTestDownload reports whether the download tools are usable
func (h *DownloadHandlerImpl) HandleTestDownload(c echo.Context) error {
	if h.downloader == nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Download service test failed: downloader not configured",
		})
	}
	report := h.downloader.SelfTest(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     report.Success,
		"message":     "Download service test completed",
		"test_result": report,
	})
}
