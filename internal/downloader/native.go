package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	ytnative "github.com/ytget/ytdlp/v2"

	"github.com/audio-tag-editor/backend/internal/models"
)

// itag 140 is YouTube's AAC 128k audio-only stream.
const nativeAudioFormat = "itag=140"

// downloadNative fetches the audio stream with the pure Go YouTube client and
// transcodes it to MP3 with ffmpeg.
func (s *Service) downloadNative(ctx context.Context, url, workDir string) (*models.DownloadInfo, error) {
	raw := filepath.Join(workDir, "stream.m4a")

	video, err := ytnative.New().
		WithFormat(nativeAudioFormat, "m4a").
		WithOutputPath(raw).
		Download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("native download: %w", err)
	}

	title := ""
	if video != nil {
		title = video.Title
	}

	duration, err := probeDuration(raw)
	if err == nil {
		if err := s.checkDuration(duration); err != nil {
			return nil, err
		}
	}

	name := SanitizeFilename(title)
	out := filepath.Join(workDir, name+".mp3")
	if err := s.transcodeMP3(raw, out); err != nil {
		return nil, err
	}
	os.Remove(raw)

	return &models.DownloadInfo{
		Title:       title,
		Duration:    duration,
		FilePath:    out,
		Filename:    name + ".mp3",
		Method:      MethodNative,
		ContentType: "audio/mpeg",
	}, nil
}

// transcodeMP3 converts in to a constant bitrate MP3.
func (s *Service) transcodeMP3(in, out string) error {
	stream := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{
			"vn":     "",
			"acodec": "libmp3lame",
			"b:a":    bitrate(s.cfg.AudioQuality),
		}).
		OverWriteOutput()
	if s.cfg.FFmpegPath != "" {
		stream = stream.SetFfmpegPath(s.cfg.FFmpegPath)
	}
	if err := stream.Run(); err != nil {
		return fmt.Errorf("transcode to mp3: %w", err)
	}
	return nil
}

// probeDuration reads the container duration in whole seconds with ffprobe.
func probeDuration(path string) (int, error) {
	data, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("probe: %w", err)
	}
	return int(gjson.Get(data, "format.duration").Float()), nil
}

// bitrate turns yt-dlp's "320K" quality into ffmpeg's "320k".
func bitrate(quality string) string {
	if quality == "" {
		return "320k"
	}
	last := quality[len(quality)-1]
	if last == 'K' {
		return quality[:len(quality)-1] + "k"
	}
	if last >= '0' && last <= '9' {
		return quality + "k"
	}
	return quality
}
