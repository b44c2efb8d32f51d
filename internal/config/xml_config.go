// Package config provides file-based configuration management for the tag editor backend.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"AudioTagEditor" yaml:"-"`

	// Server configuration
	Server ServerConfig `xml:"Server" yaml:"server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage" yaml:"storage"`

	// Processing configuration
	Processing ProcessingConfig `xml:"Processing" yaml:"processing"`

	// Cover art handling
	Cover CoverConfig `xml:"Cover" yaml:"cover"`

	// URL download configuration
	Downloader DownloaderConfig `xml:"Downloader" yaml:"downloader"`

	// Security configuration
	Security SecurityConfig `xml:"Security" yaml:"security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bind_address"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enable_cors"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allow_origins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"read_timeout_seconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"write_timeout_seconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idle_timeout_seconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"body_limit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory      string `xml:"DataDirectory" yaml:"data_directory"`
	WorkspaceDirectory string `xml:"WorkspaceDirectory" yaml:"workspace_directory"`
	ChunkDirectory     string `xml:"ChunkDirectory" yaml:"chunk_directory"`
	DownloadDirectory  string `xml:"DownloadDirectory" yaml:"download_directory"`
	HistoryDatabase    string `xml:"HistoryDatabase" yaml:"history_database"`
	EnableHistory      bool   `xml:"EnableHistory" yaml:"enable_history"`
}

// ProcessingConfig contains session and auto-save settings
type ProcessingConfig struct {
	SessionTimeoutMinutes  int  `xml:"SessionTimeoutMinutes" yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes" yaml:"cleanup_interval_minutes"`
	AutoSaveDebounceMs     int  `xml:"AutoSaveDebounceMs" yaml:"autosave_debounce_ms"`
	BatchConcurrency       int  `xml:"BatchConcurrency" yaml:"batch_concurrency"`
	MaxSessions            int  `xml:"MaxSessions" yaml:"max_sessions"`
	EnableCompression      bool `xml:"EnableCompression" yaml:"enable_compression"`
	CompressionLevel       int  `xml:"CompressionLevel" yaml:"compression_level"`
}

// CoverConfig contains cover art resize settings
type CoverConfig struct {
	MaxDimension  int   `xml:"MaxDimension" yaml:"max_dimension"`
	MaxBytes      int64 `xml:"MaxBytes" yaml:"max_bytes"`
	ThumbnailSize int   `xml:"ThumbnailSize" yaml:"thumbnail_size"`
}

// DownloaderConfig contains YouTube/SoundCloud fetch settings
type DownloaderConfig struct {
	YtDlpPath          string `xml:"YtDlpPath" yaml:"ytdlp_path"`
	FFmpegPath         string `xml:"FFmpegPath" yaml:"ffmpeg_path"`
	MaxDurationSeconds int    `xml:"MaxDurationSeconds" yaml:"max_duration_seconds"`
	TimeoutSeconds     int    `xml:"TimeoutSeconds" yaml:"timeout_seconds"`
	AudioQuality       string `xml:"AudioQuality" yaml:"audio_quality"`
	EnableNativeClient bool   `xml:"EnableNativeClient" yaml:"enable_native_client"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowWorkspaceClear bool   `xml:"AllowWorkspaceClear" yaml:"allow_workspace_clear"`
	AllowedAudioTypes   string `xml:"AllowedAudioTypes" yaml:"allowed_audio_types"`
	AllowedImageTypes   string `xml:"AllowedImageTypes" yaml:"allowed_image_types"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" yaml:"log_level"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging" yaml:"enable_request_logging"`
	DebugMode               bool   `xml:"DebugMode" yaml:"debug_mode"`
	DuckDBThreads           int    `xml:"DuckDBThreads" yaml:"duckdb_threads"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit" yaml:"duckdb_memory_limit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" yaml:"websocket_max_message_size_kb"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8000,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "http://localhost:3000,http://127.0.0.1:3000,https://audio-tag-editor-web.vercel.app",
			ReadTimeout:  60,
			WriteTimeout: 300,
			IdleTimeout:  120,
			BodyLimit:    "100M",
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			WorkspaceDirectory: "./data/workspace",
			ChunkDirectory:     "./data/chunks",
			DownloadDirectory:  "./data/downloads",
			HistoryDatabase:    "./data/history.duckdb",
			EnableHistory:      true,
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  60,
			CleanupIntervalMinutes: 5,
			AutoSaveDebounceMs:     800,
			BatchConcurrency:       4,
			MaxSessions:            20,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Cover: CoverConfig{
			MaxDimension:  1000,
			MaxBytes:      500 * 1024,
			ThumbnailSize: 300,
		},
		Downloader: DownloaderConfig{
			YtDlpPath:          "",
			FFmpegPath:         "",
			MaxDurationSeconds: 1200,
			TimeoutSeconds:     600,
			AudioQuality:       "320K",
			EnableNativeClient: true,
		},
		Security: SecurityConfig{
			AllowWorkspaceClear: true,
			AllowedAudioTypes:   ".mp3,.wav,.flac,.m4a,.ogg,.opus,.aac",
			AllowedImageTypes:   ".jpg,.jpeg,.png,.gif,.webp",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DebugMode:               false,
			DuckDBThreads:           2,
			DuckDBMemoryLimit:       "256MB",
			WebSocketMaxMessageSize: 16384,
		},
	}
}

// isYAML reports whether the path names a YAML config file.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from an XML or YAML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so sections missing from the file keep sane values
	config := DefaultConfig()
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = xml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to file, XML unless the path ends in .yaml/.yml
func (c *AppConfig) Save(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Audio Tag Editor Configuration\n# This file is auto-generated on first run\n\n"), output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Audio Tag Editor Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage path that still sits under the default data dir
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		defaults := DefaultConfig().Storage
		if c.Storage.WorkspaceDirectory == defaults.WorkspaceDirectory {
			c.Storage.WorkspaceDirectory = filepath.Join(dataDir, "workspace")
		}
		if c.Storage.ChunkDirectory == defaults.ChunkDirectory {
			c.Storage.ChunkDirectory = filepath.Join(dataDir, "chunks")
		}
		if c.Storage.DownloadDirectory == defaults.DownloadDirectory {
			c.Storage.DownloadDirectory = filepath.Join(dataDir, "downloads")
		}
		if c.Storage.HistoryDatabase == defaults.HistoryDatabase {
			c.Storage.HistoryDatabase = filepath.Join(dataDir, "history.duckdb")
		}
		c.Storage.DataDirectory = dataDir
	}

	if workspace := os.Getenv("WORKSPACE_DIR"); workspace != "" {
		c.Storage.WorkspaceDirectory = workspace
	}

	if ytdlp := os.Getenv("YTDLP_PATH"); ytdlp != "" {
		c.Downloader.YtDlpPath = ytdlp
	}

	if ffmpeg := os.Getenv("FFMPEG_PATH"); ffmpeg != "" {
		c.Downloader.FFmpegPath = ffmpeg
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.AllowOrigins = origins
	}

	if dbg := os.Getenv("DEBUG"); dbg != "" {
		if on, err := strconv.ParseBool(dbg); err == nil {
			c.Advanced.DebugMode = on
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.WorkspaceDirectory,
		&c.Storage.ChunkDirectory,
		&c.Storage.DownloadDirectory,
		&c.Storage.HistoryDatabase,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetWorkspaceDir returns the absolute workspace directory path
func (c *AppConfig) GetWorkspaceDir() string {
	return c.Storage.WorkspaceDirectory
}

// GetChunkDir returns the directory used for in-flight chunked uploads
func (c *AppConfig) GetChunkDir() string {
	return c.Storage.ChunkDirectory
}

// GetDownloadDir returns the directory holding in-flight downloads. It is kept
// apart from the chunk directory, which a workspace clear empties.
func (c *AppConfig) GetDownloadDir() string {
	return c.Storage.DownloadDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetAllowedOrigins splits the configured CORS origins
func (c *AppConfig) GetAllowedOrigins() []string {
	return splitList(c.Server.AllowOrigins)
}

// GetAudioExtensions returns the accepted audio file extensions, lower-cased
func (c *AppConfig) GetAudioExtensions() []string {
	return splitList(strings.ToLower(c.Security.AllowedAudioTypes))
}

// GetImageExtensions returns the accepted cover image extensions, lower-cased
func (c *AppConfig) GetImageExtensions() []string {
	return splitList(strings.ToLower(c.Security.AllowedImageTypes))
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.WorkspaceDirectory,
		c.Storage.ChunkDirectory,
		c.Storage.DownloadDirectory,
	}
	if c.Storage.HistoryDatabase != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.HistoryDatabase))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
