package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/audio-tag-editor/backend/internal/api"
	"github.com/audio-tag-editor/backend/internal/audio"
	"github.com/audio-tag-editor/backend/internal/config"
	"github.com/audio-tag-editor/backend/internal/cover"
	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/downloader"
	"github.com/audio-tag-editor/backend/internal/history"
	"github.com/audio-tag-editor/backend/internal/session"
	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/upload"
	"github.com/audio-tag-editor/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configFlag := flag.String("config", "", "path to an XML or YAML config file")
	flag.Parse()

	configPath := config.Locate(*configFlag)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	if cfg.Advanced.DebugMode || os.Getenv("DEBUG") != "" {
		debug.Set(true)
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetWorkspaceDir(), cfg.GetChunkDir(), cfg.GetAudioExtensions())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	deps := &api.Dependencies{
		Store:               fileStore,
		Version:             Version,
		AudioExtensions:     cfg.GetAudioExtensions(),
		ImageExtensions:     cfg.GetImageExtensions(),
		AllowWorkspaceClear: cfg.Security.AllowWorkspaceClear,
		ThumbnailSize:       cfg.Cover.ThumbnailSize,
		MaxDuration:         cfg.Downloader.MaxDurationSeconds,
		WSMaxMessageSize:    int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
	}

	// Edit history is optional; the server runs without it
	var recorder session.Recorder
	if cfg.Storage.EnableHistory && cfg.Storage.HistoryDatabase != "" {
		historyStore, err := history.Open(cfg.Storage.HistoryDatabase, history.Options{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		})
		if err != nil {
			fmt.Printf("Warning: edit history disabled: %v\n", err)
		} else {
			defer historyStore.Close()
			recorder = historyStore
			deps.History = historyStore
		}
	}

	audioSvc := audio.NewService(cover.Options{
		MaxDimension: cfg.Cover.MaxDimension,
		MaxBytes:     int(cfg.Cover.MaxBytes),
	})
	deps.Audio = audioSvc

	deps.Downloader = downloader.NewService(downloader.Config{
		YtDlpPath:    cfg.Downloader.YtDlpPath,
		FFmpegPath:   cfg.Downloader.FFmpegPath,
		TempDir:      cfg.GetDownloadDir(),
		MaxDuration:  cfg.Downloader.MaxDurationSeconds,
		Timeout:      time.Duration(cfg.Downloader.TimeoutSeconds) * time.Second,
		AudioQuality: cfg.Downloader.AudioQuality,
		EnableNative: cfg.Downloader.EnableNativeClient,
	})

	// Initialize session manager
	sessionMgr := session.NewManager(fileStore, audioSvc, recorder, session.Config{
		MaxSessions:      cfg.Processing.MaxSessions,
		Debounce:         time.Duration(cfg.Processing.AutoSaveDebounceMs) * time.Millisecond,
		BatchConcurrency: cfg.Processing.BatchConcurrency,
	})
	deps.Sessions = sessionMgr

	// Initialize upload processing manager
	uploadMgr := upload.NewManager(fileStore, audioSvc, sessionMgr)
	deps.Uploads = uploadMgr

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background session and job cleanup
	go func() {
		interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		maxAge := time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessionMgr.CleanupOldSessions(maxAge)
				if n := uploadMgr.CleanupOldJobs(maxAge); n > 0 {
					fmt.Printf("[Cleanup] Removed %d finished upload jobs\n", n)
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			return api.SkipQuietPaths(c)
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				req := c.Request()
				return req.Header.Get("Accept") == "text/event-stream" ||
					strings.HasSuffix(req.URL.Path, "/stream") ||
					strings.HasPrefix(req.URL.Path, "/api/ws/")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := cfg.GetAllowedOrigins()
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{echo.HeaderContentDisposition},
		}))
	}

	handlers := api.NewHandlers(deps)
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	// Configure server with settings from config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	mode := "API only"
	if embeddedMode {
		mode = "Embedded frontend"
	}
	historyState := "disabled"
	if deps.History != nil {
		historyState = cfg.Storage.HistoryDatabase
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Audio Tag Editor Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Workspace: %-46s║\n", cfg.GetWorkspaceDir())
	fmt.Printf("║  History:   %-46s║\n", historyState)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Server error: %v\n", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}

	// Pending debounced saves are written before history closes
	sessionMgr.FlushAll(shutdownCtx)
}
