package downloader

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// ToolStatus is the availability of one external tool.
type ToolStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SelfTestReport is returned by the downloader self-test.
type SelfTestReport struct {
	Success      bool       `json:"success"`
	YtDlp        ToolStatus `json:"yt_dlp"`
	FFmpeg       ToolStatus `json:"ffmpeg"`
	NativeClient bool       `json:"native_client"`
	MaxDuration  int        `json:"max_duration"`
	Message      string     `json:"message"`
}

// SelfTest checks that the external tools the downloader relies on are usable.
func (s *Service) SelfTest(ctx context.Context) *SelfTestReport {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	report := &SelfTestReport{
		NativeClient: s.cfg.EnableNative,
		MaxDuration:  s.cfg.MaxDuration,
	}

	report.YtDlp = lookupTool(s.cfg.YtDlpPath, "yt-dlp")
	if report.YtDlp.Available {
		result, err := s.command().Version(ctx)
		if err != nil {
			report.YtDlp.Available = false
			report.YtDlp.Error = err.Error()
		} else {
			report.YtDlp.Version = strings.TrimSpace(result.Stdout)
		}
	}

	report.FFmpeg = lookupTool(s.cfg.FFmpegPath, "ffmpeg")

	report.Success = report.YtDlp.Available && report.FFmpeg.Available
	switch {
	case report.Success:
		report.Message = "Downloader is ready"
	case !report.YtDlp.Available:
		report.Message = "yt-dlp is not available"
	default:
		report.Message = "ffmpeg is not available; audio extraction will fail"
	}
	return report
}

func lookupTool(configured, name string) ToolStatus {
	bin := configured
	if bin == "" {
		bin = name
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolStatus{Error: err.Error()}
	}
	return ToolStatus{Available: true, Path: path}
}
