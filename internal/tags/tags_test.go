package tags

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngPixel is a 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func createTestMP3(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test.mp3")

	// Minimal MPEG1 Layer3 frame, 128kbps, 44100Hz
	frame := make([]byte, 417)
	frame[0] = 0xff
	frame[1] = 0xfb
	frame[2] = 0x90
	frame[3] = 0x00

	require.NoError(t, os.WriteFile(path, frame, 0o600))
	return path
}

func TestWriteRead_MP3(t *testing.T) {
	path := createTestMP3(t, t.TempDir())

	in := &Tag{
		Title:       "Song",
		Artist:      "Artist",
		AlbumArtist: "Band",
		Album:       "Album",
		Genre:       "Rock",
		Date:        "2021-05-04",
		TrackNumber: 3,
		TotalTracks: 12,
		Cover:       pngPixel,
	}
	require.NoError(t, Write(path, in))
	assert.Equal(t, MIMEPNG, in.CoverMIME, "missing cover MIME is sniffed before writing")

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Song", got.Title)
	assert.Equal(t, "Artist", got.Artist)
	assert.Equal(t, "Band", got.AlbumArtist)
	assert.Equal(t, "Album", got.Album)
	assert.Equal(t, "Rock", got.Genre)
	assert.Equal(t, "2021-05-04", got.Date)
	assert.Equal(t, "2021", got.Year())
	assert.Equal(t, 3, got.TrackNumber)
	assert.Equal(t, pngPixel, got.Cover)
	assert.Equal(t, MIMEPNG, got.CoverMIME)
}

func TestWrite_MP3RemovesEmptiedFieldsAndCover(t *testing.T) {
	path := createTestMP3(t, t.TempDir())
	require.NoError(t, Write(path, &Tag{Title: "Old", Album: "Gone", Cover: pngPixel}))

	require.NoError(t, Write(path, &Tag{Title: "New"}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Empty(t, got.Album)
	assert.Empty(t, got.Cover)

	data, mime, err := ExtractCover(path)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Empty(t, mime)
}

func TestRead_UntaggedMP3(t *testing.T) {
	path := createTestMP3(t, t.TempDir())

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	assert.Empty(t, got.Cover)
}

func TestExtractCover_MP3(t *testing.T) {
	path := createTestMP3(t, t.TempDir())
	require.NoError(t, Write(path, &Tag{Title: "x", Cover: pngPixel, CoverMIME: MIMEPNG}))

	data, mime, err := ExtractCover(path)
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
	assert.Equal(t, MIMEPNG, mime)
}

func TestWrite_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.aac")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xf1, 0x50, 0x80}, 0o600))

	err := Write(path, &Tag{Title: "x"})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
	assert.False(t, Writable(path))
	assert.True(t, Writable("a.FLAC"))
}

func TestWrite_MissingFile(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "nope.mp3"), &Tag{})
	assert.Error(t, err)
}

func TestDetectImageMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, MIMEJPEG},
		{"png", pngPixel, MIMEPNG},
		{"gif87", []byte("GIF87a...."), MIMEGIF},
		{"gif89", []byte("GIF89a...."), MIMEGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), MIMEWebP},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), MIMEJPEG},
		{"unknown", []byte("hello"), MIMEJPEG},
		{"empty", nil, MIMEJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectImageMIME(tt.data))
		})
	}
}

func TestTrackParsing(t *testing.T) {
	var tg Tag
	tg.SetTrack("4/10")
	assert.Equal(t, 4, tg.TrackNumber)
	assert.Equal(t, 10, tg.TotalTracks)
	assert.Equal(t, "4", tg.Track())

	tg = Tag{}
	tg.SetTrack("garbage")
	assert.Equal(t, 0, tg.TrackNumber)
	assert.Equal(t, "", tg.Track())
}

func TestStripID3v2Tag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v22.mp3")
	header := []byte{'I', 'D', '3', 2, 0, 0, 0, 0, 0, 4}
	body := []byte{0, 0, 0, 0}
	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00}
	require.NoError(t, os.WriteFile(path, append(append(header, body...), mp3...), 0o600))

	require.NoError(t, stripID3v2Tag(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, mp3, data)
}

func TestSafeInt16(t *testing.T) {
	assert.Equal(t, int16(32767), safeInt16(40000))
	assert.Equal(t, int16(-32768), safeInt16(-40000))
	assert.Equal(t, int16(7), safeInt16(7))
}
