package tags

import (
	"fmt"
	"os"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"go.senan.xyz/taglib"
)

// Read reads tag metadata, including the embedded cover, from an audio file.
func Read(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		switch Format(path) {
		case ExtMP3:
			// dhowden/tag chokes on some UTF-16 ID3 frames
			return readMP3WithID3v2(path)
		case ExtFLAC, ExtM4A, ExtMP4, ExtOGG, ExtOPUS, ExtWAV:
			return readWithTaglib(path)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, Format(path))
	}

	track, total := m.Track()
	t := &Tag{
		Title:       m.Title(),
		Artist:      m.Artist(),
		AlbumArtist: m.AlbumArtist(),
		Album:       m.Album(),
		Genre:       m.Genre(),
		Date:        yearToDate(m.Year()),
		TrackNumber: track,
		TotalTracks: total,
	}

	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		t.Cover = pic.Data
		t.CoverMIME = pic.MIMEType
		if t.CoverMIME == "" {
			t.CoverMIME = DetectImageMIME(pic.Data)
		}
	}

	// dhowden/tag only exposes the year; keep the full recording date when there is one
	if Format(path) == ExtMP3 {
		if full := readID3Date(path); len(full) > len(t.Date) {
			t.Date = full
		}
	}

	return t, nil
}

// readMP3WithID3v2 reads an MP3 with bogem/id3v2 when dhowden/tag fails.
func readMP3WithID3v2(path string) (*Tag, error) {
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("read id3v2: %w", err)
	}
	defer id3.Close()

	t := &Tag{
		Title:  id3.Title(),
		Artist: id3.Artist(),
		Album:  id3.Album(),
		Genre:  id3.Genre(),
		Date:   id3.Year(),
	}
	if v := id3Text(id3, "TDRC"); v != "" {
		t.Date = v
	}
	t.SetTrack(id3Text(id3, id3.CommonID("Track number/Position in set")))
	t.AlbumArtist = id3Text(id3, id3.CommonID("Band/Orchestra/Accompaniment"))

	for _, frame := range id3.GetFrames(id3.CommonID("Attached picture")) {
		pic, ok := frame.(id3v2.PictureFrame)
		if !ok || len(pic.Picture) == 0 {
			continue
		}
		t.Cover = pic.Picture
		t.CoverMIME = pic.MimeType
		if t.CoverMIME == "" {
			t.CoverMIME = DetectImageMIME(pic.Picture)
		}
		if pic.PictureType == id3v2.PTFrontCover {
			break
		}
	}

	return t, nil
}

// readID3Date returns the TDRC frame of an MP3, "" if absent or unreadable.
func readID3Date(path string) string {
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return ""
	}
	defer id3.Close()
	return id3Text(id3, "TDRC")
}

// id3Text returns the first text frame with the given ID.
func id3Text(id3 *id3v2.Tag, frameID string) string {
	frames := id3.GetFrames(frameID)
	if len(frames) == 0 {
		return ""
	}
	if tf, ok := frames[0].(id3v2.TextFrame); ok {
		return strings.TrimSpace(tf.Text)
	}
	return ""
}

// readWithTaglib reads tags through TagLib for files dhowden/tag cannot parse.
// ReadTags carries no pictures; FLAC covers are read from the picture block.
func readWithTaglib(path string) (*Tag, error) {
	raw, err := taglib.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	get := func(key string) string {
		if v := raw[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	t := &Tag{
		Title:       get(taglib.Title),
		Artist:      get(taglib.Artist),
		AlbumArtist: get(taglib.AlbumArtist),
		Album:       get(taglib.Album),
		Genre:       get(taglib.Genre),
		Date:        get(taglib.Date),
	}
	t.SetTrack(get(taglib.TrackNumber))

	if data, mime, err := extractFLACPicture(path); err == nil && len(data) > 0 {
		t.Cover, t.CoverMIME = data, mime
	}

	return t, nil
}
