// handlers_upload.go - Chunked upload handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/upload"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store          storage.Store
	uploadManager  *upload.Manager
	audioExts      []string
	streamInterval time.Duration
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(deps *Dependencies) UploadHandler {
	return &UploadHandlerImpl{
		store:          deps.Store,
		uploadManager:  deps.Uploads,
		audioExts:      deps.audioExts(),
		streamInterval: 100 * time.Millisecond,
	}
}

// HandleUploadChunk accepts a single chunk of a chunked upload (multipart "file")
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	uploadID := c.FormValue("uploadId")
	if !storage.ValidUploadID(uploadID) {
		return NewValidationError("uploadId")
	}
	chunkIndex, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no chunk data provided", err)
	}
	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open chunk", err)
	}
	defer src.Close()

	if err := h.store.SaveChunk(uploadID, chunkIndex, src); err != nil {
		return NewBadRequestError("failed to save chunk", err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"uploadId":   uploadID,
		"chunkIndex": chunkIndex,
	})
}

// HandleCompleteUpload completes a chunked upload and starts async processing
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(h.audioExts); err != nil {
		return err
	}
	if h.uploadManager == nil {
		return NewServiceUnavailableError("upload processing is not available")
	}

	job := h.uploadManager.StartJob(upload.Request{
		UploadID:       req.UploadID,
		FileName:       req.Name,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
		SessionID:      req.SessionID,
	})

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleGetJob returns the state of an upload job
func (h *UploadHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("jobId")
	if h.uploadManager == nil {
		return NewNotFoundError("job", id)
	}
	job, ok := h.uploadManager.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleUploadJobStream streams job progress as Server-Sent Events until the
// job finishes or the client goes away.
func (h *UploadHandlerImpl) HandleUploadJobStream(c echo.Context) error {
	jobID := c.Param("jobId")

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	if h.uploadManager == nil {
		writeEvent(resp, map[string]string{"error": "job not found"})
		return nil
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		job, ok := h.uploadManager.GetJob(jobID)
		if !ok {
			writeEvent(resp, map[string]string{"error": "job not found"})
			return nil
		}
		writeEvent(resp, map[string]interface{}{
			"jobId":         job.ID,
			"status":        job.Status,
			"progress":      job.Progress,
			"stage":         job.Stage,
			"stageProgress": job.StageProgress,
			"fileInfo":      job.FileInfo,
			"metadata":      job.Metadata,
			"error":         job.Error,
		})
		if job.Done() {
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func writeEvent(resp *echo.Response, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(resp, "data: %s\n\n", data)
	resp.Flush()
}

// Request/Response types

type completeUploadRequest struct {
	UploadID       string `json:"uploadId"`
	Name           string `json:"name"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Encoding       string `json:"encoding"`
	SessionID      string `json:"sessionId"`
}

func (r *completeUploadRequest) validate(audioExts []string) error {
	if !storage.ValidUploadID(r.UploadID) {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	if !hasExtension(r.Name, audioExts) {
		return NewBadRequestError("Unsupported file format", nil)
	}
	return nil
}
