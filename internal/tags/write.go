package tags

import (
	"fmt"
	"os"
)

// Write replaces the editor's fields of an audio file in place with t. Fields
// left empty in t are removed from the file, and so is the cover when t.Cover
// is empty. Tags outside those fields (comments, composer, lyrics) are kept.
func Write(path string, t *Tag) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	if len(t.Cover) > 0 && t.CoverMIME == "" {
		t.CoverMIME = DetectImageMIME(t.Cover)
	}

	switch Format(path) {
	case ExtMP3:
		return writeMP3Tags(path, t)
	case ExtFLAC:
		return writeFLACTags(path, t)
	case ExtM4A, ExtMP4:
		return writeM4ATags(path, t)
	case ExtOGG, ExtOPUS, ExtWAV:
		return writeTaglibTags(path, t)
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, Format(path))
}
