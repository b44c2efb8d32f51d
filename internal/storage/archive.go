package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audio-tag-editor/backend/internal/models"
)

// WriteArchive streams a zip of the selected workspace files to w, named by
// their original file names. A nil indices slice selects every file; indices
// outside the listing are skipped. Returns the number of files written.
func (s *LocalStore) WriteArchive(w io.Writer, indices []int) (int, error) {
	list, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, ErrEmptyWorkspace
	}

	selected := list
	if indices != nil {
		selected = make([]*models.FileInfo, 0, len(indices))
		for _, i := range indices {
			if i >= 0 && i < len(list) {
				selected = append(selected, list[i])
			}
		}
	}
	if len(selected) == 0 {
		return 0, ErrNoSelection
	}

	zw := zip.NewWriter(w)
	used := make(map[string]int, len(selected))
	written := 0
	for _, info := range selected {
		if err := s.addToArchive(zw, info, archiveName(info.Filename, used)); err != nil {
			zw.Close()
			return written, err
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("finalizing archive: %w", err)
	}
	return written, nil
}

func (s *LocalStore) addToArchive(zw *zip.Writer, info *models.FileInfo, name string) error {
	f, err := os.Open(filepath.Join(s.workspaceDir, info.StoredFilename))
	if err != nil {
		return fmt.Errorf("opening %s: %w", info.StoredFilename, err)
	}
	defer f.Close()

	modified := info.ModTime
	if modified.IsZero() {
		modified = time.Now()
	}
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}
	return nil
}

// archiveName keeps zip entry names unique: a.mp3, a (2).mp3, ...
func archiveName(name string, used map[string]int) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
}
