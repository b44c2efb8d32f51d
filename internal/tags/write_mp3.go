package tags

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/bogem/id3v2/v2"
)

// Frames owned by the editor. Everything else in the tag (comments,
// composer, lyrics, replay gain) is left alone.
var mp3ManagedFrames = []string{"TIT2", "TPE1", "TPE2", "TALB", "TCON", "TDRC", "TYER", "TRCK", "APIC"}

// writeMP3Tags rewrites the managed frames of an MP3 file as ID3v2.4.
func writeMP3Tags(path string, t *Tag) error {
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if errors.Is(err, id3v2.ErrUnsupportedVersion) {
		// ID3v2.2 tags cannot be edited; drop them and start fresh
		if stripErr := stripID3v2Tag(path); stripErr != nil {
			return fmt.Errorf("strip unsupported ID3v2.2 tag: %w", stripErr)
		}
		id3, err = id3v2.Open(path, id3v2.Options{Parse: true})
	}
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer id3.Close()

	id3.SetVersion(4)
	id3.SetDefaultEncoding(id3v2.EncodingUTF8)
	for _, id := range mp3ManagedFrames {
		id3.DeleteFrames(id)
	}

	if t.Title != "" {
		id3.SetTitle(t.Title)
	}
	if t.Artist != "" {
		id3.SetArtist(t.Artist)
	}
	if t.Album != "" {
		id3.SetAlbum(t.Album)
	}
	if t.Genre != "" {
		id3.SetGenre(t.Genre)
	}
	if t.AlbumArtist != "" {
		id3.AddTextFrame(id3.CommonID("Band/Orchestra/Accompaniment"), id3v2.EncodingUTF8, t.AlbumArtist)
	}
	if t.Date != "" {
		id3.AddTextFrame("TDRC", id3v2.EncodingUTF8, t.Date)
	}
	if t.TrackNumber > 0 {
		track := strconv.Itoa(t.TrackNumber)
		if t.TotalTracks > 0 {
			track += "/" + strconv.Itoa(t.TotalTracks)
		}
		id3.AddTextFrame(id3.CommonID("Track number/Position in set"), id3v2.EncodingUTF8, track)
	}

	if len(t.Cover) > 0 {
		id3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    t.CoverMIME,
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     t.Cover,
		})
	}

	if err := id3.Save(); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}

// stripID3v2Tag removes a leading ID3v2 tag from a file.
func stripID3v2Tag(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(data) < 10 || string(data[:3]) != id3Magic {
		return nil
	}

	// Synchsafe size: 7 bits per byte
	size := int(data[6])<<21 | int(data[7])<<14 | int(data[8])<<7 | int(data[9])
	tagSize := size + 10
	if data[5]&0x10 != 0 {
		tagSize += 10 // footer
	}
	if tagSize >= len(data) {
		return fmt.Errorf("ID3v2 tag size (%d) exceeds file size (%d)", tagSize, len(data))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	return os.WriteFile(path, data[tagSize:], info.Mode())
}
