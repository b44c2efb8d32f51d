// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/downloader"
	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/upload"
)

// DefaultImageExtensions are the cover image extensions accepted by the cover-art route.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	Sessions   SessionManager
	Uploads    *upload.Manager
	Audio      AudioService
	Downloader downloader.Downloader
	History    HistoryReader // nil when history is disabled
	Version    string

	AudioExtensions     []string
	ImageExtensions     []string
	AllowWorkspaceClear bool
	ThumbnailSize       int
	MaxDuration         int // seconds, for download error messages
	WSMaxMessageSize    int64
}

func (d *Dependencies) audioExts() []string {
	if len(d.AudioExtensions) == 0 {
		return storage.DefaultAudioExtensions
	}
	return d.AudioExtensions
}

func (d *Dependencies) imageExts() []string {
	if len(d.ImageExtensions) == 0 {
		return DefaultImageExtensions
	}
	return d.ImageExtensions
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Audio     AudioHandler
	Download  DownloadHandler
	Upload    UploadHandler
	Workspace WorkspaceHandler
	Session   SessionHandler
	Debug     DebugHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version),
		Audio:     NewAudioHandler(deps),
		Download:  NewDownloadHandler(deps),
		Upload:    NewUploadHandler(deps),
		Workspace: NewWorkspaceHandler(deps),
		Session:   NewSessionHandler(deps),
		Debug:     NewDebugHandler(),
		WebSocket: NewWebSocketHandler(deps),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/", handlers.Health.HandleRoot)
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Upload and tag routes
	e.POST("/upload", handlers.Audio.HandleUpload)
	e.POST("/upload/", handlers.Audio.HandleUpload)
	uploadGroup := e.Group("/upload")
	uploadGroup.POST("/update-tags", handlers.Audio.HandleUpdateTags)
	uploadGroup.POST("/update-tags/:filename", handlers.Audio.HandleUpdateStoredTags)
	uploadGroup.POST("/cover-art", handlers.Audio.HandleUpdateCoverArt)
	uploadGroup.GET("/cover-art/:filename", handlers.Audio.HandleGetCoverArt)

	// Downloads
	uploadGroup.GET("/download/:filename", handlers.Download.HandleDownloadFile)
	uploadGroup.GET("/download-latest", handlers.Download.HandleDownloadLatest)
	uploadGroup.POST("/download/youtube", handlers.Download.HandleDownloadYouTube)
	uploadGroup.POST("/download/soundcloud", handlers.Download.HandleDownloadSoundCloud)
	uploadGroup.GET("/youtube/playlist", handlers.Download.HandleYouTubePlaylist)
	uploadGroup.GET("/test-download", handlers.Download.HandleTestDownload)

	// Chunked uploads
	uploadGroup.POST("/chunk", handlers.Upload.HandleUploadChunk)
	uploadGroup.POST("/complete", handlers.Upload.HandleCompleteUpload)
	uploadGroup.GET("/jobs/:jobId", handlers.Upload.HandleGetJob)
	uploadGroup.GET("/jobs/:jobId/stream", handlers.Upload.HandleUploadJobStream)

	// Workspace routes
	workspaceGroup := e.Group("/api/workspace")
	workspaceGroup.GET("/files", handlers.Workspace.HandleListFiles)
	workspaceGroup.GET("/files/msgpack", handlers.Workspace.HandleListFilesMsgpack)
	workspaceGroup.GET("/files/:index", handlers.Workspace.HandleGetFileByIndex)
	workspaceGroup.GET("/archive", handlers.Workspace.HandleArchive)
	workspaceGroup.POST("/archive", handlers.Workspace.HandleArchive)
	workspaceGroup.GET("/history/:filename", handlers.Workspace.HandleFileHistory)
	workspaceGroup.GET("/debug", handlers.Workspace.HandleDebug)
	e.DELETE("/api/workspace", handlers.Workspace.HandleClear)

	// Editing sessions
	sessionGroup := e.Group("/api/sessions")
	sessionGroup.POST("", handlers.Session.HandleCreateSession)
	sessionGroup.GET("/:id", handlers.Session.HandleGetSession)
	sessionGroup.DELETE("/:id", handlers.Session.HandleCloseSession)
	sessionGroup.POST("/:id/files", handlers.Session.HandleAddFiles)
	sessionGroup.DELETE("/:id/files/:index", handlers.Session.HandleRemoveFile)
	sessionGroup.PATCH("/:id/files/:index", handlers.Session.HandleEditFile)
	sessionGroup.PUT("/:id/current", handlers.Session.HandleSetCurrent)
	sessionGroup.POST("/:id/next", handlers.Session.HandleNext)
	sessionGroup.POST("/:id/prev", handlers.Session.HandlePrev)
	sessionGroup.PUT("/:id/batch", handlers.Session.HandleSetBatchMode)
	sessionGroup.POST("/:id/flush", handlers.Session.HandleFlush)
	sessionGroup.GET("/:id/history", handlers.Session.HandleHistory)
	sessionGroup.POST("/:id/keepalive", handlers.Session.HandleKeepAlive)
	sessionGroup.GET("/:id/archive", handlers.Session.HandleSessionArchive)

	// Debug
	e.GET("/api/debug", handlers.Debug.HandleGetDebug)
	e.PUT("/api/debug", handlers.Debug.HandleSetDebug)
	e.POST("/api/debug/toggle", handlers.Debug.HandleToggleDebug)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/uploads", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}

// SkipQuietPaths reports whether a request is a polling route left out of access logs.
func SkipQuietPaths(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/api/health" || strings.HasPrefix(path, "/upload/jobs/")
}
