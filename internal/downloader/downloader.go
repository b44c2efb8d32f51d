// Package downloader fetches audio from YouTube and SoundCloud URLs.
//
// The primary method drives the yt-dlp binary, extracting the best audio
// stream to MP3. When YouTube's player changes break yt-dlp's signature
// extraction, a native Go client downloads the stream and ffmpeg transcodes it.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/audio-tag-editor/backend/internal/models"
)

// Method names reported in DownloadInfo.Method.
const (
	MethodYtDlp  = "yt-dlp"
	MethodNative = "native"
)

const (
	DefaultMaxDuration  = 1200 // seconds
	DefaultTimeout      = 10 * time.Minute
	DefaultAudioQuality = "320K"

	maxFilenameLength = 100
	defaultFilename   = "downloaded_audio"
)

var (
	ErrInvalidURL = errors.New("invalid URL")
	ErrTooLong    = errors.New("audio is too long")
	ErrDRM        = errors.New("drm protected")
	ErrNotFound   = errors.New("downloaded file not found")
	ErrNoPlaylist = errors.New("no playlist id in URL")
)

var (
	youtubePattern    = regexp.MustCompile(`(?i)^(https?://)?(www\.)?(youtube|youtu|youtube-nocookie)\.(com|be)/`)
	soundcloudPattern = regexp.MustCompile(`(?i)^(https?://)?(www\.)?soundcloud\.com/`)
	invalidNameChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace        = regexp.MustCompile(`\s+`)
)

// Config configures a Service.
type Config struct {
	YtDlpPath    string // empty: look up yt-dlp on PATH
	FFmpegPath   string // empty: look up ffmpeg on PATH
	TempDir      string // empty: os.TempDir()
	MaxDuration  int    // seconds
	Timeout      time.Duration
	AudioQuality string
	EnableNative bool
}

// Downloader is what the HTTP layer needs from a downloader.
type Downloader interface {
	Download(ctx context.Context, url string) (*models.DownloadInfo, error)
	Probe(ctx context.Context, url string) (*models.DownloadInfo, error)
	PlaylistItems(ctx context.Context, url string) ([]models.PlaylistEntry, error)
	SelfTest(ctx context.Context) *SelfTestReport
	Cleanup(info *models.DownloadInfo)
}

// Service implements Downloader.
type Service struct {
	cfg Config
}

var _ Downloader = (*Service)(nil)

// NewService creates a downloader, filling unset config fields with defaults.
func NewService(cfg Config) *Service {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = DefaultAudioQuality
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Service{cfg: cfg}
}

// DetectPlatform returns the platform of a supported URL.
func DetectPlatform(url string) (models.Platform, error) {
	url = strings.TrimSpace(url)
	switch {
	case youtubePattern.MatchString(url):
		return models.PlatformYouTube, nil
	case soundcloudPattern.MatchString(url):
		return models.PlatformSoundCloud, nil
	}
	return "", ErrInvalidURL
}

// Download fetches url as an MP3 into a private temp directory. Callers must
// call Cleanup once they have copied the file.
func (s *Service) Download(ctx context.Context, url string) (*models.DownloadInfo, error) {
	platform, err := DetectPlatform(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	workDir, err := s.newWorkDir()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	info, err := s.downloadWithYtDlp(ctx, url, workDir)
	if err != nil && s.cfg.EnableNative && platform == models.PlatformYouTube && needsFallback(err) {
		fmt.Printf("[Downloader] yt-dlp failed (%v), trying native client\n", err)
		info, err = s.downloadNative(ctx, url, workDir)
	}
	if err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}

	info.Platform = platform
	info.URL = url
	if st, statErr := os.Stat(info.FilePath); statErr == nil {
		info.FileSize = st.Size()
	}
	fmt.Printf("[Downloader] %s: %q via %s in %v\n", platform, info.Title, info.Method, time.Since(start).Round(time.Millisecond))
	return info, nil
}

// newWorkDir creates a private directory for one download. The parent is
// recreated when something removed it after startup.
func (s *Service) newWorkDir() (string, error) {
	if err := os.MkdirAll(s.cfg.TempDir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	dir, err := os.MkdirTemp(s.cfg.TempDir, "audio-dl-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return dir, nil
}

// Cleanup removes the temp directory of a finished download.
func (s *Service) Cleanup(info *models.DownloadInfo) {
	if info == nil || info.FilePath == "" {
		return
	}
	dir := filepath.Dir(info.FilePath)
	if !strings.HasPrefix(filepath.Base(dir), "audio-dl-") {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		fmt.Printf("[Downloader] Warning: failed to clean %s: %v\n", dir, err)
	}
}

func (s *Service) checkDuration(seconds int) error {
	if seconds > s.cfg.MaxDuration {
		return fmt.Errorf("%w: %ds exceeds %ds", ErrTooLong, seconds, s.cfg.MaxDuration)
	}
	return nil
}

// needsFallback reports whether err is one of the YouTube player breakages
// the native client works around.
func needsFallback(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nsig extraction failed") ||
		strings.Contains(msg, "n function search") ||
		strings.Contains(msg, "requested format is not available")
}

// classify maps raw tool output onto package errors.
func classify(err error, output string) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error() + " " + output)
	if strings.Contains(text, "drm protected") || strings.Contains(text, "drm-protected") {
		return ErrDRM
	}
	if output != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(strings.TrimSpace(output))) {
		return fmt.Errorf("%w: %s", err, lastLine(output))
	}
	return err
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// UserMessage turns a download error into the text shown to the user.
func UserMessage(err error, maxDuration int) string {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "Invalid URL. Please provide a valid YouTube or SoundCloud URL."
	case errors.Is(err, ErrTooLong):
		return fmt.Sprintf("Audio is too long (max %d minutes)", maxDuration/60)
	case errors.Is(err, ErrDRM):
		return "This video is DRM-protected and cannot be downloaded."
	case errors.Is(err, context.DeadlineExceeded):
		return "Download timed out. Please try again."
	case err != nil && needsFallback(err):
		return "YouTube has updated their player. This is a temporary issue that usually resolves within a few hours. Please try again later, or try a different video."
	case err != nil:
		return "Download failed: " + err.Error()
	}
	return ""
}

// SanitizeFilename makes a title safe to use as a file name.
func SanitizeFilename(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "")
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > maxFilenameLength {
		name = strings.TrimSpace(string(r[:maxFilenameLength]))
	}
	if name == "" {
		return defaultFilename
	}
	return name
}

// findAudio returns the first file in dir with extension ext.
func findAudio(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", ErrNotFound
}
