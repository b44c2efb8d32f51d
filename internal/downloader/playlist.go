package downloader

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	ytnative "github.com/ytget/ytdlp/v2"

	"github.com/audio-tag-editor/backend/internal/models"
)

const videoURLTemplate = "https://www.youtube.com/watch?v=%s"

// PlaylistItems lists the videos of the YouTube playlist named by the list= parameter of rawURL.
func (s *Service) PlaylistItems(ctx context.Context, rawURL string) ([]models.PlaylistEntry, error) {
	platform, err := DetectPlatform(rawURL)
	if err != nil {
		return nil, err
	}
	if platform != models.PlatformYouTube {
		return nil, fmt.Errorf("%w: playlists are only supported for YouTube", ErrInvalidURL)
	}

	id := PlaylistID(rawURL)
	if id == "" {
		return nil, ErrNoPlaylist
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	items, err := ytnative.New().GetPlaylistItemsAll(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("get playlist items: %w", err)
	}

	entries := make([]models.PlaylistEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, models.PlaylistEntry{
			VideoID: it.VideoID,
			Title:   it.Title,
			URL:     fmt.Sprintf(videoURLTemplate, it.VideoID),
		})
	}
	return entries, nil
}

// PlaylistID extracts the list= query parameter, "" when absent.
func PlaylistID(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}
