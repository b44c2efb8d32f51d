package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audio-tag-editor/backend/internal/cover"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/tags"
)

func writeMP3(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "song.mp3")
	frame := make([]byte, 417)
	frame[0], frame[1], frame[2] = 0xff, 0xfb, 0x90
	require.NoError(t, os.WriteFile(path, frame, 0o600))
	return path
}

func pngCover(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	path := writeMP3(t, t.TempDir())
	art := pngCover(t)
	require.NoError(t, tags.Write(path, &tags.Tag{
		Title:       "Title",
		Artist:      "Artist",
		Album:       "Album",
		Genre:       "Jazz",
		Date:        "1999-12-31",
		TrackNumber: 7,
		Cover:       art,
	}))

	svc := NewService(cover.Options{})
	meta, err := svc.Extract(path)
	require.NoError(t, err)

	assert.Equal(t, "Title", meta.Title)
	assert.Equal(t, "Artist", meta.Artist)
	assert.Equal(t, "Album", meta.Album)
	assert.Equal(t, "Jazz", meta.Genre)
	assert.Equal(t, "1999", meta.Year)
	assert.Equal(t, "7", meta.Track)
	assert.Equal(t, tags.MIMEPNG, meta.CoverArtMimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(art), meta.CoverArt)
}

func TestExtract_Unreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	_, err := NewService(cover.Options{}).Extract(path)
	assert.True(t, errors.Is(err, ErrUnreadable), "got %v", err)
}

func TestApply_OverridesOnlyNonEmpty(t *testing.T) {
	path := writeMP3(t, t.TempDir())
	require.NoError(t, tags.Write(path, &tags.Tag{Title: "Keep", Artist: "Old", Album: "Album"}))

	svc := NewService(cover.Options{})
	require.NoError(t, svc.Apply(path, &models.AudioMetadata{Artist: "New", Year: "2020", Track: "2"}))

	meta, err := svc.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "Keep", meta.Title)
	assert.Equal(t, "New", meta.Artist)
	assert.Equal(t, "Album", meta.Album)
	assert.Equal(t, "2020", meta.Year)
	assert.Equal(t, "2", meta.Track)
}

func TestApply_KeepsFramesOutsideTheForm(t *testing.T) {
	path := writeMP3(t, t.TempDir())
	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	id3.SetTitle("Old")
	id3.AddTextFrame("TCOM", id3v2.EncodingUTF8, "Composer")
	id3.AddCommentFrame(id3v2.CommentFrame{Encoding: id3v2.EncodingUTF8, Language: "eng", Text: "note"})
	require.NoError(t, id3.Save())
	id3.Close()

	require.NoError(t, NewService(cover.Options{}).Apply(path, &models.AudioMetadata{Title: "New"}))

	id3, err = id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer id3.Close()
	assert.Equal(t, "New", id3.Title())
	assert.Equal(t, "Composer", id3.GetTextFrame("TCOM").Text)
	comments := id3.GetFrames(id3.CommonID("Comments"))
	require.Len(t, comments, 1)
	cf, ok := comments[0].(id3v2.CommentFrame)
	require.True(t, ok)
	assert.Equal(t, "note", cf.Text)
}

func TestApply_CoverLifecycle(t *testing.T) {
	path := writeMP3(t, t.TempDir())
	svc := NewService(cover.Options{})
	art := pngCover(t)

	err := svc.Apply(path, &models.AudioMetadata{
		Title:            "With cover",
		CoverArt:         "data:image/png;base64," + base64.StdEncoding.EncodeToString(art),
		CoverArtMimeType: tags.MIMEPNG,
	})
	require.NoError(t, err)

	data, mime, err := tags.ExtractCover(path)
	require.NoError(t, err)
	assert.Equal(t, art, data, "small PNG covers are embedded untouched")
	assert.Equal(t, tags.MIMEPNG, mime)

	require.NoError(t, svc.Apply(path, &models.AudioMetadata{Title: "No cover"}))
	data, _, err = tags.ExtractCover(path)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestApply_InvalidCover(t *testing.T) {
	path := writeMP3(t, t.TempDir())
	err := NewService(cover.Options{}).Apply(path, &models.AudioMetadata{
		CoverArt:         "!!!not base64",
		CoverArtMimeType: tags.MIMEJPEG,
	})
	assert.True(t, errors.Is(err, ErrInvalidCover), "got %v", err)
}

func TestSetCover(t *testing.T) {
	path := writeMP3(t, t.TempDir())
	require.NoError(t, tags.Write(path, &tags.Tag{Title: "Song"}))
	svc := NewService(cover.Options{})

	require.NoError(t, svc.SetCover(path, pngCover(t), tags.MIMEPNG))
	got, err := tags.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Song", got.Title)
	assert.NotEmpty(t, got.Cover)

	require.NoError(t, svc.SetCover(path, nil, ""))
	got, err = tags.Read(path)
	require.NoError(t, err)
	assert.Empty(t, got.Cover)
}

func TestMergeDownloaded(t *testing.T) {
	meta := &models.AudioMetadata{Title: "From tags"}
	MergeDownloaded(meta, &models.DownloadInfo{
		Title:    "From info",
		Uploader: "Channel",
		Year:     "2019",
		Duration: 215,
	})

	assert.Equal(t, "From tags", meta.Title)
	assert.Equal(t, "Channel", meta.Artist)
	assert.Equal(t, "2019", meta.Year)
	assert.Empty(t, meta.Album)
	assert.Equal(t, 215, meta.Duration)

	MergeDownloaded(meta, nil)
	assert.Equal(t, "Channel", meta.Artist)
}

func TestYearOf(t *testing.T) {
	tests := map[string]string{
		"2021":       "2021",
		"2021-05-04": "2021",
		"":           "",
		"May 2021":   "",
		"20x1":       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, yearOf(in), "yearOf(%q)", in)
	}
}
