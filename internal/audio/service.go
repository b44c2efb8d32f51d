// Package audio maps between the frontend's tag model and the files on disk.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/audio-tag-editor/backend/internal/cover"
	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/tags"
)

// ErrUnreadable is returned when no tag reader can make sense of a file.
var ErrUnreadable = errors.New("unable to read audio file")

// ErrInvalidCover is returned for cover payloads that are not valid base64.
var ErrInvalidCover = errors.New("invalid cover art data")

// Service reads and rewrites tags of workspace files.
type Service struct {
	coverOpts cover.Options
}

// NewService creates a tag service. Covers are normalized with opts before embedding.
func NewService(opts cover.Options) *Service {
	return &Service{coverOpts: opts}
}

// Extract reads the editable metadata of an audio file.
func (s *Service) Extract(path string) (*models.AudioMetadata, error) {
	t, err := tags.Read(path)
	if err != nil {
		debug.Printf("Audio", "extract %s failed: %v", path, err)
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	meta := &models.AudioMetadata{
		Title:  t.Title,
		Artist: t.Artist,
		Album:  t.Album,
		Genre:  t.Genre,
		Year:   yearOf(t.Date),
		Track:  t.Track(),
	}

	if props, err := tags.ReadProperties(path); err == nil {
		meta.Duration = int(math.Round(props.Duration.Seconds()))
	} else {
		debug.Printf("Audio", "no stream properties for %s: %v", path, err)
	}

	if len(t.Cover) > 0 {
		meta.CoverArt = base64.StdEncoding.EncodeToString(t.Cover)
		meta.CoverArtMimeType = t.CoverMIME
		if meta.CoverArtMimeType == "" {
			meta.CoverArtMimeType = tags.DetectImageMIME(t.Cover)
		}
	}

	return meta, nil
}

// Apply writes meta into the file. Empty text fields keep what the file
// already has. The cover is replaced when meta carries cover and MIME, and
// removed when the cover field is empty.
func (s *Service) Apply(path string, meta *models.AudioMetadata) error {
	t, err := tags.Read(path)
	if err != nil {
		if !tags.Writable(path) {
			return fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		// Untagged files still get a fresh tag
		t = &tags.Tag{}
	}

	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&t.Title, meta.Title)
	override(&t.Artist, meta.Artist)
	override(&t.Album, meta.Album)
	override(&t.Genre, meta.Genre)
	override(&t.Date, meta.Year)
	if track := strings.TrimSpace(meta.Track); track != "" {
		t.SetTrack(track)
	}

	switch {
	case meta.HasCover():
		data, mime, err := s.decodeCover(meta.CoverArt)
		if err != nil {
			return err
		}
		t.Cover, t.CoverMIME = data, mime
	case meta.CoverArt == "":
		t.Cover, t.CoverMIME = nil, ""
	}

	if err := tags.Write(path, t); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}
	debug.Printf("Audio", "applied tags to %s (cover=%v)", path, len(t.Cover) > 0)
	return nil
}

// SetCover replaces only the cover of a file.
func (s *Service) SetCover(path string, data []byte, mime string) error {
	t, err := tags.Read(path)
	if err != nil {
		if !tags.Writable(path) {
			return fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		t = &tags.Tag{}
	}

	if len(data) == 0 {
		t.Cover, t.CoverMIME = nil, ""
	} else {
		norm, normMIME, err := cover.Normalize(data, s.coverOpts)
		if err != nil {
			// Keep formats the decoder does not know, as long as the MIME is an image
			if !strings.HasPrefix(mime, "image/") {
				return fmt.Errorf("%w: %v", ErrInvalidCover, err)
			}
			norm, normMIME = data, mime
		}
		t.Cover, t.CoverMIME = norm, normMIME
	}

	if err := tags.Write(path, t); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	return nil
}

func (s *Service) decodeCover(b64 string) ([]byte, string, error) {
	// Data URLs come straight from the browser's FileReader
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}
	data, mime, err := cover.Normalize(raw, s.coverOpts)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidCover, err)
	}
	return data, mime, nil
}

// MergeDownloaded fills empty fields of meta from what the downloader reported.
func MergeDownloaded(meta *models.AudioMetadata, info *models.DownloadInfo) {
	if info == nil {
		return
	}
	fill := func(dst *string, candidates ...string) {
		if *dst != "" {
			return
		}
		for _, c := range candidates {
			if c = strings.TrimSpace(c); c != "" {
				*dst = c
				return
			}
		}
	}
	fill(&meta.Title, info.Title)
	fill(&meta.Artist, info.Artist, info.Uploader)
	fill(&meta.Album, info.Album)
	fill(&meta.Year, info.Year)
	fill(&meta.Genre, info.Genre)
	if meta.Duration == 0 {
		meta.Duration = info.Duration
	}
}

// yearOf returns the year of a YYYY or YYYY-MM-DD date, "" when it does not parse.
func yearOf(date string) string {
	year := strings.TrimSpace(strings.SplitN(date, "-", 2)[0])
	if len(year) != 4 {
		return ""
	}
	for _, r := range year {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return year
}
