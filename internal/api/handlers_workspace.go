// handlers_workspace.go - Workspace listing, archive and maintenance handlers
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

const archiveFilename = "audio_files.zip"

// WorkspaceHandlerImpl implements the WorkspaceHandler interface
type WorkspaceHandlerImpl struct {
	store      storage.Store
	sessions   SessionManager
	history    HistoryReader
	allowClear bool
}

// NewWorkspaceHandler creates a new workspace handler instance
func NewWorkspaceHandler(deps *Dependencies) WorkspaceHandler {
	return &WorkspaceHandlerImpl{
		store:      deps.Store,
		sessions:   deps.Sessions,
		history:    deps.History,
		allowClear: deps.AllowWorkspaceClear,
	}
}

// HandleListFiles lists every workspace file with per-type counts
func (h *WorkspaceHandlerImpl) HandleListFiles(c echo.Context) error {
	files, err := h.store.List()
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, models.NewWorkspaceListing(files))
}

// HandleListFilesMsgpack returns the listing encoded as MessagePack
func (h *WorkspaceHandlerImpl) HandleListFilesMsgpack(c echo.Context) error {
	files, err := h.store.List()
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	data, err := msgpack.Marshal(models.NewWorkspaceListing(files))
	if err != nil {
		return NewInternalError("failed to encode listing", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// HandleGetFileByIndex returns one file of the listing
func (h *WorkspaceHandlerImpl) HandleGetFileByIndex(c echo.Context) error {
	param := c.Param("index")
	index, err := strconv.Atoi(param)
	if err != nil {
		return NewValidationError("index")
	}
	info, err := h.store.GetByIndex(index)
	if err != nil {
		return NewNotFoundError("file", param)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleArchive streams a zip of the selected files. The selection comes from
// the indices query ("0,2") or a JSON body {"indices": [0, 2]}; none means all.
func (h *WorkspaceHandlerImpl) HandleArchive(c echo.Context) error {
	indices, err := archiveIndices(c)
	if err != nil {
		return err
	}
	return streamArchive(c, h.store, indices)
}

func archiveIndices(c echo.Context) ([]int, error) {
	if raw := c.QueryParam("indices"); raw != "" {
		return parseIndices(raw)
	}
	if c.Request().Method != http.MethodPost || c.Request().ContentLength == 0 {
		return nil, nil
	}
	var body struct {
		Indices []int `json:"indices"`
	}
	if err := c.Bind(&body); err != nil {
		return nil, NewBadRequestError("invalid request body", err)
	}
	return body.Indices, nil
}

func parseIndices(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	indices := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, NewBadRequestError("indices must be a comma separated list of numbers", err)
		}
		indices = append(indices, i)
	}
	return indices, nil
}

// streamArchive writes the zip straight into the response.
func streamArchive(c echo.Context, store storage.Store, indices []int) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/zip")
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+archiveFilename+`"`)

	n, err := store.WriteArchive(resp, indices)
	if err != nil {
		if resp.Committed {
			// Headers are gone; the client sees a truncated zip
			return err
		}
		resp.Header().Del(echo.HeaderContentDisposition)
		resp.Header().Del(echo.HeaderContentType)
		return fromError(err, "failed to build archive")
	}
	debug.Printf("Workspace", "streamed archive of %d files", n)
	return nil
}

// HandleFileHistory returns the recorded saves whose source was :filename
func (h *WorkspaceHandlerImpl) HandleFileHistory(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("edit history is disabled")
	}
	stored := c.Param("filename")
	if _, err := h.store.Get(stored); err != nil {
		return NewNotFoundError("file", stored)
	}
	limit, err := limitParam(c)
	if err != nil {
		return err
	}

	edits, err := h.history.ForFile(c.Request().Context(), stored, limit)
	if err != nil {
		return NewInternalError("failed to read history", err)
	}
	if edits == nil {
		edits = []models.EditRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"storedFilename": stored,
		"edits":          edits,
	})
}

// HandleClear deletes every workspace file and empties the open sessions,
// whose entries would otherwise point at files that no longer exist
func (h *WorkspaceHandlerImpl) HandleClear(c echo.Context) error {
	if !h.allowClear {
		return NewForbiddenError("clearing the workspace is disabled")
	}
	dropped := 0
	if h.sessions != nil {
		dropped = h.sessions.ClearFiles()
	}
	deleted, errs := h.store.Clear()

	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       len(errs) == 0,
		"deleted_count": deleted,
		"session_files": dropped,
		"errors":        messages,
	})
}

// HandleDebug reports workspace and service state for troubleshooting
func (h *WorkspaceHandlerImpl) HandleDebug(c echo.Context) error {
	info := h.store.DebugInfo()
	if h.sessions != nil {
		info["session_count"] = h.sessions.Count()
	}
	info["debug_enabled"] = debug.Enabled()
	return c.JSON(http.StatusOK, info)
}
