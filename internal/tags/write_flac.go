package tags

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// Vorbis comment keys owned by the editor; other comments are carried over.
var flacManagedKeys = map[string]bool{
	flacvorbis.FIELD_TITLE:       true,
	flacvorbis.FIELD_ARTIST:      true,
	"ALBUMARTIST":                true,
	flacvorbis.FIELD_ALBUM:       true,
	flacvorbis.FIELD_GENRE:       true,
	flacvorbis.FIELD_DATE:        true,
	flacvorbis.FIELD_TRACKNUMBER: true,
	"TOTALTRACKS":                true,
	"TRACKTOTAL":                 true,
}

// writeFLACTags rewrites the managed Vorbis comments and the front cover of a FLAC file.
func writeFLACTags(path string, t *Tag) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse file: %w", err)
	}

	cmts := flacvorbis.New()
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		existing, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return fmt.Errorf("parse vorbis comment: %w", err)
		}
		cmts.Vendor = existing.Vendor
		for _, c := range existing.Comments {
			key, _, _ := strings.Cut(c, "=")
			if !flacManagedKeys[strings.ToUpper(key)] {
				cmts.Comments = append(cmts.Comments, c)
			}
		}
		break
	}

	type field struct{ key, value string }
	fields := []field{
		{flacvorbis.FIELD_TITLE, t.Title},
		{flacvorbis.FIELD_ARTIST, t.Artist},
		{"ALBUMARTIST", t.AlbumArtist},
		{flacvorbis.FIELD_ALBUM, t.Album},
		{flacvorbis.FIELD_GENRE, t.Genre},
		{flacvorbis.FIELD_DATE, t.Date},
		{flacvorbis.FIELD_TRACKNUMBER, t.Track()},
	}
	if t.TotalTracks > 0 {
		fields = append(fields, field{"TOTALTRACKS", strconv.Itoa(t.TotalTracks)})
	}
	for _, fld := range fields {
		if fld.value == "" {
			continue
		}
		if err := cmts.Add(fld.key, fld.value); err != nil {
			return fmt.Errorf("add %s: %w", fld.key, err)
		}
	}
	cmtBlock := cmts.Marshal()

	// The comment block goes where the old one was; pictures are replaced like APIC frames
	meta := make([]*flac.MetaDataBlock, 0, len(f.Meta)+2)
	placed := false
	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment:
			if !placed {
				meta = append(meta, &cmtBlock)
				placed = true
			}
		case flac.Picture:
		default:
			meta = append(meta, block)
		}
	}
	if !placed {
		meta = append(meta, &cmtBlock)
	}

	if len(t.Cover) > 0 {
		pic, err := flacpicture.NewFromImageData(
			flacpicture.PictureTypeFrontCover,
			"Cover",
			t.Cover,
			t.CoverMIME,
		)
		if err != nil {
			return fmt.Errorf("create picture: %w", err)
		}
		picBlock := pic.Marshal()
		meta = append(meta, &picBlock)
	}
	f.Meta = meta

	if err := f.Save(path); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}
