// Package tags reads and writes embedded audio metadata for MP3, FLAC, M4A,
// Ogg/Opus and WAV files.
package tags

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
)

// File extensions handled by the tags package.
const (
	ExtMP3  = ".mp3"
	ExtFLAC = ".flac"
	ExtM4A  = ".m4a"
	ExtMP4  = ".mp4"
	ExtOGG  = ".ogg"
	ExtOPUS = ".opus"
	ExtWAV  = ".wav"
	ExtAAC  = ".aac"
)

// ErrUnsupportedFormat is returned for extensions no writer handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// id3Magic is the magic bytes for ID3v2 header detection.
const id3Magic = "ID3"

// Tag holds the metadata fields the editor reads and writes.
type Tag struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Genre       string
	Date        string // YYYY or YYYY-MM-DD
	TrackNumber int
	TotalTracks int

	// Cover is the front cover image. Empty means no cover.
	Cover     []byte
	CoverMIME string
}

// Year returns the year part of Date.
func (t *Tag) Year() string {
	if t.Date == "" {
		return ""
	}
	return strings.SplitN(t.Date, "-", 2)[0]
}

// Track formats the track number, "" when unset.
func (t *Tag) Track() string {
	if t.TrackNumber <= 0 {
		return ""
	}
	return strconv.Itoa(t.TrackNumber)
}

// SetTrack parses "3" or "3/12".
func (t *Tag) SetTrack(s string) {
	num, total := parseSlashNumber(s)
	t.TrackNumber = num
	if total > 0 {
		t.TotalTracks = total
	}
}

// Format returns the normalized extension of path.
func Format(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Writable reports whether Write supports the file's format.
func Writable(path string) bool {
	switch Format(path) {
	case ExtMP3, ExtFLAC, ExtM4A, ExtMP4, ExtOGG, ExtOPUS, ExtWAV:
		return true
	}
	return false
}

func parseSlashNumber(s string) (int, int) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0
	}
	parts := strings.SplitN(s, "/", 2)
	num, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
	total := 0
	if len(parts) == 2 {
		total, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	return num, total
}

// yearToDate converts a year integer to a date string.
func yearToDate(year int) string {
	if year == 0 {
		return ""
	}
	return strconv.Itoa(year)
}
