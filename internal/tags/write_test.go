package tags

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.senan.xyz/taglib"
)

// createTestFLAC writes a FLAC stream with only a STREAMINFO block, then adds
// the given "KEY=value" comments.
func createTestFLAC(t *testing.T, dir string, comments ...string) string {
	t.Helper()
	path := filepath.Join(dir, "test.flac")

	streamInfo := make([]byte, 34)
	streamInfo[0], streamInfo[1] = 0x10, 0x00 // min block size 4096
	streamInfo[2], streamInfo[3] = 0x10, 0x00 // max block size 4096
	copy(streamInfo[10:18], []byte{0x0a, 0xc4, 0x42, 0xf0, 0, 0, 0, 0})

	data := []byte("fLaC")
	data = append(data, 0x80, 0x00, 0x00, byte(len(streamInfo)))
	data = append(data, streamInfo...)
	data = append(data, 0xff, 0xf8, 0x69, 0x08, 0x00, 0x00)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	if len(comments) == 0 {
		return path
	}
	f, err := flac.ParseFile(path)
	require.NoError(t, err)
	cmts := flacvorbis.New()
	for _, c := range comments {
		key, value, _ := strings.Cut(c, "=")
		require.NoError(t, cmts.Add(key, value))
	}
	block := cmts.Marshal()
	f.Meta = append(f.Meta, &block)
	require.NoError(t, f.Save(path))
	return path
}

// createFixture encodes a one second sine wave with ffmpeg.
func createFixture(t *testing.T, dir, ext, codec string) string {
	t.Helper()
	path := filepath.Join(dir, "test"+ext)

	cmd := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-c:a", codec, path)
	if err := cmd.Run(); err != nil {
		t.Skipf("ffmpeg not available: %v", err)
	}
	return path
}

func flacComments(t *testing.T, path string) []string {
	t.Helper()
	f, err := flac.ParseFile(path)
	require.NoError(t, err)
	for _, meta := range f.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}
		cmts, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		require.NoError(t, err)
		return cmts.Comments
	}
	return nil
}

func TestWrite_MP3KeepsUnmanagedFrames(t *testing.T) {
	path := createTestMP3(t, t.TempDir())

	id3, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	id3.SetTitle("Old")
	id3.AddTextFrame("TCOM", id3v2.EncodingUTF8, "Composer")
	id3.AddCommentFrame(id3v2.CommentFrame{
		Encoding: id3v2.EncodingUTF8,
		Language: "eng",
		Text:     "note",
	})
	require.NoError(t, id3.Save())
	id3.Close()

	require.NoError(t, Write(path, &Tag{Title: "New", Cover: pngPixel}))

	id3, err = id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer id3.Close()
	assert.Equal(t, "New", id3.Title())
	assert.Equal(t, "Composer", id3.GetTextFrame("TCOM").Text)
	assert.Len(t, id3.GetFrames(id3.CommonID("Comments")), 1)
	assert.Len(t, id3.GetFrames("TIT2"), 1)
	assert.Len(t, id3.GetFrames("APIC"), 1)
}

func TestWrite_FLAC(t *testing.T) {
	tests := []struct {
		name         string
		comments     []string
		in           *Tag
		wantKept     []string
		wantDropped  []string
		wantTitle    string
		wantCoverLen int
	}{
		{
			name:         "fresh file",
			in:           &Tag{Title: "Song", Artist: "Artist", TrackNumber: 2, TotalTracks: 9, Cover: pngPixel},
			wantKept:     []string{"TITLE=Song", "ARTIST=Artist", "TRACKNUMBER=2", "TOTALTRACKS=9"},
			wantTitle:    "Song",
			wantCoverLen: len(pngPixel),
		},
		{
			name:        "unmanaged comments survive",
			comments:    []string{"TITLE=Old", "ALBUM=Gone", "COMPOSER=Someone", "REPLAYGAIN_TRACK_GAIN=-6.2 dB"},
			in:          &Tag{Title: "New"},
			wantKept:    []string{"TITLE=New", "COMPOSER=Someone", "REPLAYGAIN_TRACK_GAIN=-6.2 dB"},
			wantDropped: []string{"TITLE=Old", "ALBUM=Gone"},
			wantTitle:   "New",
		},
		{
			name:        "managed keys match case-insensitively",
			comments:    []string{"title=old", "TrackTotal=4"},
			in:          &Tag{Title: "New"},
			wantKept:    []string{"TITLE=New"},
			wantDropped: []string{"title=old", "TrackTotal=4"},
			wantTitle:   "New",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTestFLAC(t, t.TempDir(), tt.comments...)

			require.NoError(t, Write(path, tt.in))

			comments := flacComments(t, path)
			for _, c := range tt.wantKept {
				assert.Contains(t, comments, c)
			}
			for _, c := range tt.wantDropped {
				assert.NotContains(t, comments, c)
			}

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, got.Title)
			assert.Len(t, got.Cover, tt.wantCoverLen)
		})
	}
}

func TestWrite_FLACRemovesCover(t *testing.T) {
	path := createTestFLAC(t, t.TempDir())
	require.NoError(t, Write(path, &Tag{Title: "x", Cover: pngPixel}))

	require.NoError(t, Write(path, &Tag{Title: "x"}))

	data, _, err := ExtractCover(path)
	require.NoError(t, err)
	assert.Nil(t, data)
}

// Round trip through every writer backed by a real encoder.
func TestWriteRead_EncodedFormats(t *testing.T) {
	tests := []struct {
		ext        string
		codec      string
		checkCover bool
		checkKept  bool
	}{
		{ExtFLAC, "flac", true, true},
		{ExtM4A, "aac", true, false},
		{ExtOGG, "libvorbis", false, true},
		{ExtOPUS, "libopus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			path := createFixture(t, t.TempDir(), tt.ext, tt.codec)
			if tt.checkKept {
				require.NoError(t, taglib.WriteTags(path, map[string][]string{"COMPOSER": {"Someone"}}, 0))
			}

			in := &Tag{
				Title:       "Song",
				Artist:      "Artist",
				AlbumArtist: "Band",
				Album:       "Album",
				Genre:       "Rock",
				Date:        "2021",
				TrackNumber: 3,
				Cover:       pngPixel,
			}
			require.NoError(t, Write(path, in))

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, "Song", got.Title)
			assert.Equal(t, "Artist", got.Artist)
			assert.Equal(t, "Band", got.AlbumArtist)
			assert.Equal(t, "Album", got.Album)
			assert.Equal(t, "Rock", got.Genre)
			assert.Equal(t, "2021", got.Year())
			assert.Equal(t, 3, got.TrackNumber)
			if tt.checkCover {
				assert.Equal(t, pngPixel, got.Cover)
			}

			// Emptied fields and the cover are removed
			require.NoError(t, Write(path, &Tag{Title: "Song"}))

			got, err = Read(path)
			require.NoError(t, err)
			assert.Equal(t, "Song", got.Title)
			assert.Empty(t, got.Album)
			assert.Empty(t, got.Artist)
			assert.Empty(t, got.Cover)

			if tt.checkKept {
				raw, err := taglib.ReadTags(path)
				require.NoError(t, err)
				assert.Equal(t, []string{"Someone"}, raw["COMPOSER"])
			}
		})
	}
}
