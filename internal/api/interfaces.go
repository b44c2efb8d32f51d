// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/models"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleRoot(c echo.Context) error
	HandleHealth(c echo.Context) error
}

// AudioHandler handles uploads and tag rewrites
type AudioHandler interface {
	HandleUpload(c echo.Context) error
	HandleUpdateTags(c echo.Context) error
	HandleUpdateStoredTags(c echo.Context) error
	HandleUpdateCoverArt(c echo.Context) error
	HandleGetCoverArt(c echo.Context) error
}

// DownloadHandler handles serving workspace files and URL downloads
type DownloadHandler interface {
	HandleDownloadFile(c echo.Context) error
	HandleDownloadLatest(c echo.Context) error
	HandleDownloadYouTube(c echo.Context) error
	HandleDownloadSoundCloud(c echo.Context) error
	HandleYouTubePlaylist(c echo.Context) error
	HandleTestDownload(c echo.Context) error
}

// UploadHandler handles chunked uploads
type UploadHandler interface {
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleUploadJobStream(c echo.Context) error
}

// WorkspaceHandler handles workspace listing and archives
type WorkspaceHandler interface {
	HandleListFiles(c echo.Context) error
	HandleListFilesMsgpack(c echo.Context) error
	HandleGetFileByIndex(c echo.Context) error
	HandleArchive(c echo.Context) error
	HandleFileHistory(c echo.Context) error
	HandleClear(c echo.Context) error
	HandleDebug(c echo.Context) error
}

// SessionHandler handles editing sessions
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleCloseSession(c echo.Context) error
	HandleAddFiles(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleSetCurrent(c echo.Context) error
	HandleNext(c echo.Context) error
	HandlePrev(c echo.Context) error
	HandleSetBatchMode(c echo.Context) error
	HandleEditFile(c echo.Context) error
	HandleFlush(c echo.Context) error
	HandleHistory(c echo.Context) error
	HandleKeepAlive(c echo.Context) error
	HandleSessionArchive(c echo.Context) error
}

// DebugHandler toggles the debug log channel
type DebugHandler interface {
	HandleGetDebug(c echo.Context) error
	HandleSetDebug(c echo.Context) error
	HandleToggleDebug(c echo.Context) error
}

// AudioService reads and writes tags of files on disk.
type AudioService interface {
	Extract(path string) (*models.AudioMetadata, error)
	Apply(path string, meta *models.AudioMetadata) error
	SetCover(path string, data []byte, mime string) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Create() *models.EditSession
	Get(id string) (*models.EditSession, error)
	Touch(id string) bool
	Count() int
	Close(id string, keepFiles bool) error
	AddFiles(id string, files []models.FileMetadata) (*models.EditSession, error)
	SetCurrent(id string, index int) (*models.EditSession, error)
	Next(id string) (*models.EditSession, error)
	Prev(id string) (*models.EditSession, error)
	Remove(id string, index int) (*models.EditSession, error)
	SetBatchMode(id string, enabled bool) (*models.EditSession, error)
	Edit(id string, index int, patch models.MetadataPatch) (*models.EditSession, error)
	Flush(ctx context.Context, id string) (*models.EditSession, error)
	ClearFiles() int
}

// HistoryReader exposes the edit history.
type HistoryReader interface {
	ForSession(ctx context.Context, sessionID string, limit int) ([]models.EditRecord, error)
	ForFile(ctx context.Context, storedFilename string, limit int) ([]models.EditRecord, error)
}
