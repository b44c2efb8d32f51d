// handlers_session.go - Editing session handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/history"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

var errNoArchiveFiles = errors.New("session has no files")

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
	audio    AudioService
	history  HistoryReader
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(deps *Dependencies) SessionHandler {
	return &SessionHandlerImpl{
		store:    deps.Store,
		sessions: deps.Sessions,
		audio:    deps.Audio,
		history:  deps.History,
	}
}

// HandleCreateSession starts an empty editing session
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, h.sessions.Create())
}

// HandleGetSession returns the session snapshot
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	snap, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return fromError(err, "session not found")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleCloseSession ends a session; keepFiles=true keeps its updated copies
func (h *SessionHandlerImpl) HandleCloseSession(c echo.Context) error {
	keepFiles := c.QueryParam("keepFiles") == "true"
	if err := h.sessions.Close(c.Param("id"), keepFiles); err != nil {
		return fromError(err, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleAddFiles appends workspace files to the session, reading their tags
func (h *SessionHandlerImpl) HandleAddFiles(c echo.Context) error {
	id := c.Param("id")
	var req addFilesRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if len(req.StoredFilenames) == 0 {
		return NewValidationError("storedFilenames")
	}
	if _, err := h.sessions.Get(id); err != nil {
		return fromError(err, "session not found")
	}

	entries := make([]models.FileMetadata, 0, len(req.StoredFilenames))
	for _, stored := range req.StoredFilenames {
		info, err := h.store.Get(stored)
		if err != nil {
			return NewNotFoundError("file", stored)
		}
		path, err := h.store.GetFilePath(stored)
		if err != nil {
			return NewNotFoundError("file", stored)
		}
		meta, err := h.audio.Extract(path)
		if err != nil {
			return fromError(err, "Unable to read audio file "+info.Filename)
		}

		prov := models.ProvenanceUploaded
		if info.Type == models.FileTypeDownloaded {
			prov = models.ProvenanceDownloaded
		}
		entry := models.NewFileMetadata(info.Filename, info.StoredFilename, meta, prov)
		entry.Platform = info.Platform
		entries = append(entries, entry)
	}

	snap, err := h.sessions.AddFiles(id, entries)
	if err != nil {
		return fromError(err, "failed to add files")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleRemoveFile drops an entry from the session
func (h *SessionHandlerImpl) HandleRemoveFile(c echo.Context) error {
	index, err := indexParam(c)
	if err != nil {
		return err
	}
	snap, err := h.sessions.Remove(c.Param("id"), index)
	if err != nil {
		return fromError(err, "failed to remove file")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleSetCurrent moves the cursor to {"index": n}
func (h *SessionHandlerImpl) HandleSetCurrent(c echo.Context) error {
	var req struct {
		Index *int `json:"index"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Index == nil {
		return NewValidationError("index")
	}
	snap, err := h.sessions.SetCurrent(c.Param("id"), *req.Index)
	if err != nil {
		return fromError(err, "invalid file index")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleNext advances the cursor
func (h *SessionHandlerImpl) HandleNext(c echo.Context) error {
	snap, err := h.sessions.Next(c.Param("id"))
	if err != nil {
		return fromError(err, "session not found")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandlePrev moves the cursor back
func (h *SessionHandlerImpl) HandlePrev(c echo.Context) error {
	snap, err := h.sessions.Prev(c.Param("id"))
	if err != nil {
		return fromError(err, "session not found")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleSetBatchMode switches batch editing with {"enabled": bool}
func (h *SessionHandlerImpl) HandleSetBatchMode(c echo.Context) error {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Enabled == nil {
		return NewValidationError("enabled")
	}
	snap, err := h.sessions.SetBatchMode(c.Param("id"), *req.Enabled)
	if err != nil {
		return fromError(err, "session not found")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleEditFile applies a partial metadata edit; the save happens after the debounce
func (h *SessionHandlerImpl) HandleEditFile(c echo.Context) error {
	index, err := indexParam(c)
	if err != nil {
		return err
	}
	var patch models.MetadataPatch
	if err := c.Bind(&patch); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	snap, err := h.sessions.Edit(c.Param("id"), index, patch)
	if err != nil {
		return fromError(err, "invalid edit")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleFlush runs all pending saves now
func (h *SessionHandlerImpl) HandleFlush(c echo.Context) error {
	snap, err := h.sessions.Flush(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fromError(err, "failed to save pending edits")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleHistory returns the recorded saves of the session, newest first
func (h *SessionHandlerImpl) HandleHistory(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("edit history is disabled")
	}
	id := c.Param("id")
	limit, err := limitParam(c)
	if err != nil {
		return err
	}

	edits, err := h.history.ForSession(c.Request().Context(), id, limit)
	if err != nil {
		return NewInternalError("failed to read history", err)
	}
	if edits == nil {
		edits = []models.EditRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"edits":     edits,
	})
}

// HandleKeepAlive marks the session as in use
func (h *SessionHandlerImpl) HandleKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Touch(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSessionArchive flushes the session and zips its files, preferring
// the updated copy of each entry.
func (h *SessionHandlerImpl) HandleSessionArchive(c echo.Context) error {
	snap, err := h.sessions.Flush(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fromError(err, "failed to save pending edits")
	}
	if len(snap.Files) == 0 {
		return NewBadRequestError("nothing to download", errNoArchiveFiles)
	}

	files, err := h.store.List()
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	position := make(map[string]int, len(files))
	for i, f := range files {
		position[f.StoredFilename] = i
	}

	indices := make([]int, 0, len(snap.Files))
	for _, entry := range snap.Files {
		name := entry.StoredFilename
		if entry.UpdatedFilename != "" {
			name = entry.UpdatedFilename
		}
		if i, ok := position[name]; ok {
			indices = append(indices, i)
		}
	}
	return streamArchive(c, h.store, indices)
}

// Request/Response types

type addFilesRequest struct {
	StoredFilenames []string `json:"storedFilenames"`
}

func indexParam(c echo.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, NewValidationError("index")
	}
	return index, nil
}

// limitParam reads ?limit, defaulting to the history cap.
func limitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return history.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, NewValidationError("limit")
	}
	return n, nil
}
