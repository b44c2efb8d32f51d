package tags

import (
	"fmt"

	"go.senan.xyz/taglib"
)

// writeTaglibTags writes Ogg/Opus Vorbis comments and WAV INFO/ID3 chunks through TagLib.
func writeTaglibTags(path string, t *Tag) error {
	tags := make(map[string][]string)

	// An empty value deletes the key; keys we do not manage are kept
	add := func(key, value string) {
		if value == "" {
			tags[key] = nil
			return
		}
		tags[key] = []string{value}
	}

	add(taglib.Title, t.Title)
	add(taglib.Artist, t.Artist)
	add(taglib.AlbumArtist, t.AlbumArtist)
	add(taglib.Album, t.Album)
	add(taglib.Genre, t.Genre)
	add(taglib.Date, t.Date)
	add(taglib.TrackNumber, t.Track())

	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}

	// A nil image removes the existing cover
	if err := taglib.WriteImage(path, t.Cover); err != nil {
		return fmt.Errorf("write cover art: %w", err)
	}

	return nil
}
