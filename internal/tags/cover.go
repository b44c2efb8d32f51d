package tags

import (
	"bytes"
	"os"

	"github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/go-flac"
)

// Image MIME types recognized by DetectImageMIME.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
)

// DetectImageMIME sniffs image data by magic bytes. Unknown data is reported as JPEG.
func DetectImageMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return MIMEJPEG
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return MIMEPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return MIMEGIF
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return MIMEWebP
	}
	return MIMEJPEG
}

// ExtractCover returns the embedded front cover of an audio file, or nil data when there is none.
func ExtractCover(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err == nil {
		if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
			mime := pic.MIMEType
			if mime == "" {
				mime = DetectImageMIME(pic.Data)
			}
			return pic.Data, mime, nil
		}
	}

	// Fall back to the fuller readers
	t, readErr := Read(path)
	if readErr != nil {
		if err != nil {
			return nil, "", err
		}
		return nil, "", readErr
	}
	if len(t.Cover) == 0 {
		return nil, "", nil
	}
	return t.Cover, t.CoverMIME, nil
}

// extractFLACPicture reads the front cover picture block of a FLAC file.
func extractFLACPicture(path string) ([]byte, string, error) {
	if Format(path) != ExtFLAC {
		return nil, "", nil
	}
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, "", err
	}

	var fallback *flacpicture.MetadataBlockPicture
	for _, meta := range f.Meta {
		if meta.Type != flac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*meta)
		if err != nil {
			continue
		}
		if pic.PictureType == flacpicture.PictureTypeFrontCover {
			return pic.ImageData, pic.MIME, nil
		}
		if fallback == nil {
			fallback = pic
		}
	}
	if fallback != nil {
		return fallback.ImageData, fallback.MIME, nil
	}
	return nil, "", nil
}
