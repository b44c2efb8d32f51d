package tags

import (
	"fmt"

	"github.com/Sorrow446/go-mp4tag"
)

// mp4 atoms cleared before each write so emptied fields do not survive.
var m4aClearedFields = []string{"title", "artist", "album", "albumartist", "genre", "date", "tracknumber"}

// writeM4ATags writes MP4/M4A atoms using go-mp4tag.
func writeM4ATags(path string, t *Tag) error {
	mp4, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer mp4.Close()

	tags := &mp4tag.MP4Tags{
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		AlbumArtist: t.AlbumArtist,
		TrackNumber: safeInt16(t.TrackNumber),
		TrackTotal:  safeInt16(t.TotalTracks),
		Date:        t.Date,
		CustomGenre: t.Genre,
	}

	var del []string
	for _, name := range m4aClearedFields {
		if m4aFieldEmpty(t, name) {
			del = append(del, name)
		}
	}
	// Old covers always go; the new one is added in a second pass
	del = append(del, "allpictures")

	if err := mp4.Write(tags, del); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if len(t.Cover) == 0 {
		return nil
	}
	mp4.Close()

	withCover, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("reopen: %w", err)
	}
	defer withCover.Close()
	cover := &mp4tag.MP4Tags{Pictures: []*mp4tag.MP4Picture{{Data: t.Cover}}}
	if err := withCover.Write(cover, nil); err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	return nil
}

func m4aFieldEmpty(t *Tag, name string) bool {
	switch name {
	case "title":
		return t.Title == ""
	case "artist":
		return t.Artist == ""
	case "album":
		return t.Album == ""
	case "albumartist":
		return t.AlbumArtist == ""
	case "genre":
		return t.Genre == ""
	case "date":
		return t.Date == ""
	case "tracknumber":
		return t.TrackNumber <= 0
	}
	return false
}

// safeInt16 converts int to int16 with bounds checking.
func safeInt16(n int) int16 {
	if n > 32767 {
		return 32767
	}
	if n < -32768 {
		return -32768
	}
	return int16(n)
}
