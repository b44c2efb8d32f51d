package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/tidwall/gjson"

	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/models"
)

func (s *Service) command() *ytdlp.Command {
	cmd := ytdlp.New().NoWarnings()
	if s.cfg.YtDlpPath != "" {
		cmd = cmd.SetExecutable(s.cfg.YtDlpPath)
	}
	if s.cfg.FFmpegPath != "" {
		cmd = cmd.FFmpegLocation(s.cfg.FFmpegPath)
	}
	return cmd
}

// Probe asks yt-dlp for the track's metadata without downloading it.
func (s *Service) Probe(ctx context.Context, url string) (*models.DownloadInfo, error) {
	if _, err := DetectPlatform(url); err != nil {
		return nil, err
	}

	result, err := s.command().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist().
		Run(ctx, url)
	if err != nil {
		return nil, classify(fmt.Errorf("extract video information: %w", err), stderrOf(result))
	}
	return parseInfoJSON(result.Stdout), nil
}

// parseInfoJSON reads the fields we care about from yt-dlp's info JSON. For
// playlists the first entry is used.
func parseInfoJSON(raw string) *models.DownloadInfo {
	doc := gjson.Parse(raw)
	if entries := doc.Get("entries"); entries.IsArray() && len(entries.Array()) > 0 {
		doc = entries.Array()[0]
	}

	info := &models.DownloadInfo{
		Title:     doc.Get("title").String(),
		Uploader:  doc.Get("uploader").String(),
		Artist:    firstNonEmpty(doc.Get("artist").String(), doc.Get("creator").String()),
		Album:     doc.Get("album").String(),
		Genre:     doc.Get("genre").String(),
		Duration:  int(doc.Get("duration").Float()),
		Thumbnail: doc.Get("thumbnail").String(),
	}

	// yt-dlp reports release_year on music tracks, upload_date (YYYYMMDD) otherwise
	if y := doc.Get("release_year").Int(); y > 0 {
		info.Year = strconv.FormatInt(y, 10)
	} else if d := doc.Get("upload_date").String(); len(d) >= 4 {
		info.Year = d[:4]
	}

	// "Artist - Title" uploads on YouTube
	if info.Artist == "" {
		if parts := strings.SplitN(info.Title, " - ", 2); len(parts) == 2 {
			info.Artist = strings.TrimSpace(parts[0])
		}
	}
	return info
}

// downloadWithYtDlp probes, enforces the duration limit and extracts audio to MP3.
func (s *Service) downloadWithYtDlp(ctx context.Context, url, workDir string) (*models.DownloadInfo, error) {
	info, err := s.Probe(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := s.checkDuration(info.Duration); err != nil {
		return nil, err
	}

	name := SanitizeFilename(info.Title)
	dl := s.command().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(s.cfg.AudioQuality).
		NoPlaylist().
		ForceOverwrites().
		Output(filepath.Join(workDir, name+".%(ext)s"))

	id := shortID(url)
	dl.ProgressFunc(time.Second, func(update ytdlp.ProgressUpdate) {
		if update.TotalBytes > 0 {
			debug.Printf("Downloader", "[%s] %.0f%%", id, float64(update.DownloadedBytes)/float64(update.TotalBytes)*100)
		}
	})

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, classify(fmt.Errorf("download: %w", err), stderrOf(result))
	}

	path, err := findAudio(workDir, ".mp3")
	if err != nil {
		return nil, fmt.Errorf("%w: the download may have failed", ErrNotFound)
	}

	info.FilePath = path
	info.Filename = name + ".mp3"
	info.Method = MethodYtDlp
	info.ContentType = "audio/mpeg"
	return info, nil
}

func stderrOf(result *ytdlp.Result) string {
	if result == nil {
		return ""
	}
	return result.Stderr
}

func shortID(s string) string {
	if i := strings.LastIndexAny(s, "=/"); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	if len(s) > 11 {
		s = s[:11]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
