package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/dustin/go-humanize"
)

// Stored-name prefixes.
const (
	PrefixUpload     = "upload"
	PrefixYouTube    = "youtube"
	PrefixSoundCloud = "soundcloud"
	PrefixUpdated    = "updated"
)

const maxCleanNameLen = 50

var (
	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrEmptyWorkspace is returned when an archive is requested with nothing to put in it.
	ErrEmptyWorkspace = errors.New("no files available for download")
	// ErrNoSelection is returned when none of the requested archive indices exist.
	ErrNoSelection = errors.New("no valid files to download")
	// ErrInvalidPrefix is returned for an unknown stored-name prefix.
	ErrInvalidPrefix = errors.New("invalid file prefix")
	// ErrInvalidUploadID is returned for an upload id that could escape the chunk directory.
	ErrInvalidUploadID = errors.New("invalid upload id")
)

var storedNamePattern = regexp.MustCompile(`^(upload|youtube|soundcloud|updated)_(\d+)_(.+)$`)

// Store defines the interface for the audio workspace.
type Store interface {
	Save(prefix, name string, r io.Reader) (*models.FileInfo, error)
	SaveBytes(prefix, name string, data []byte) (*models.FileInfo, error)
	Copy(stored, prefix string) (*models.FileInfo, error)
	Get(stored string) (*models.FileInfo, error)
	List() ([]*models.FileInfo, error)
	GetByIndex(index int) (*models.FileInfo, error)
	Latest(prefix string) (*models.FileInfo, error)
	Delete(stored string) error
	Clear() (int, []error)
	GetFilePath(stored string) (string, error)
	SaveChunk(uploadID string, chunkIndex int, r io.Reader) error
	CompleteChunkedUpload(uploadID, prefix, name string, totalChunks int) (*models.FileInfo, error)
	DiscardChunks(uploadID string) error
	RegisterFile(info *models.FileInfo)
	WriteArchive(w io.Writer, indices []int) (int, error)
	DebugInfo() map[string]interface{}
}

// LocalStore implements Store using a directory on the local filesystem.
type LocalStore struct {
	mu           sync.RWMutex
	workspaceDir string
	chunkDir     string
	audioExts    map[string]bool
	files        map[string]*models.FileInfo
	lastStamp    int64
}

// DefaultAudioExtensions are the extensions accepted into the workspace.
var DefaultAudioExtensions = []string{".mp3", ".wav", ".flac", ".m4a", ".ogg", ".opus", ".aac"}

// NewLocalStore creates a new LocalStore and indexes files already present in the workspace.
func NewLocalStore(workspaceDir, chunkDir string, audioExts []string) (*LocalStore, error) {
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}
	if chunkDir == "" {
		chunkDir = filepath.Join(workspaceDir, ".chunks")
	}
	if len(audioExts) == 0 {
		audioExts = DefaultAudioExtensions
	}

	s := &LocalStore{
		workspaceDir: workspaceDir,
		chunkDir:     chunkDir,
		audioExts:    make(map[string]bool, len(audioExts)),
		files:        make(map[string]*models.FileInfo),
	}
	for _, ext := range audioExts {
		s.audioExts[strings.ToLower(ext)] = true
	}

	if err := s.rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// rescan indexes stored files left over from a previous run.
func (s *LocalStore) rescan() error {
	entries, err := os.ReadDir(s.workspaceDir)
	if err != nil {
		return fmt.Errorf("reading workspace: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() || !s.audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info, ok := describe(e.Name(), fi.Size(), fi.ModTime())
		if !ok {
			continue
		}
		s.files[info.StoredFilename] = info
		if info.Timestamp > s.lastStamp {
			s.lastStamp = info.Timestamp
		}
	}

	if len(s.files) > 0 {
		fmt.Printf("[Workspace] Indexed %d existing files in %s\n", len(s.files), s.workspaceDir)
	}
	return nil
}

// CleanFilename replaces characters that are unsafe in file names and truncates to 50 characters.
func CleanFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "?", "_", "*", "_",
		"<", "_", ">", "_", "|", "_", "\"", "_",
	)
	cleaned := replacer.Replace(name)
	if r := []rune(cleaned); len(r) > maxCleanNameLen {
		cleaned = string(r[:maxCleanNameLen])
	}
	return cleaned
}

// OriginalName strips the prefix_timestamp_ head of a stored name.
func OriginalName(stored string) string {
	if m := storedNamePattern.FindStringSubmatch(stored); m != nil {
		return m[3]
	}
	return stored
}

func validPrefix(prefix string) bool {
	switch prefix {
	case PrefixUpload, PrefixYouTube, PrefixSoundCloud, PrefixUpdated:
		return true
	}
	return false
}

// describe derives the workspace record for a stored name.
func describe(stored string, size int64, modTime time.Time) (*models.FileInfo, bool) {
	m := storedNamePattern.FindStringSubmatch(stored)
	if m == nil {
		return nil, false
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, false
	}

	var fileType models.FileType
	platform := "upload"
	switch m[1] {
	case PrefixUpload:
		fileType = models.FileTypeUploaded
	case PrefixYouTube, PrefixSoundCloud:
		fileType = models.FileTypeDownloaded
		platform = m[1]
	case PrefixUpdated:
		fileType = models.FileTypeUpdated
	}

	return &models.FileInfo{
		ID:             fmt.Sprintf("%s_%s", fileType, stored),
		Filename:       m[3],
		StoredFilename: stored,
		Type:           fileType,
		Platform:       platform,
		Size:           size,
		SizeHuman:      humanize.IBytes(uint64(size)),
		Timestamp:      ts,
		ModTime:        modTime,
	}, true
}

// nextName reserves a unique stored name. Caller holds s.mu.
func (s *LocalStore) nextName(prefix, name string) string {
	stamp := time.Now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp

	ext := filepath.Ext(name)
	base := CleanFilename(strings.TrimSuffix(filepath.Base(name), ext))
	if base == "" {
		base = "audio"
	}
	return fmt.Sprintf("%s_%d_%s%s", prefix, stamp, base, strings.ToLower(ext))
}

// Save writes a file into the workspace under a new stored name.
func (s *LocalStore) Save(prefix, name string, r io.Reader) (*models.FileInfo, error) {
	if !validPrefix(prefix) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrefix, prefix)
	}

	s.mu.Lock()
	stored := s.nextName(prefix, name)
	s.mu.Unlock()

	path := filepath.Join(s.workspaceDir, stored)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info, _ := describe(stored, size, time.Now())

	s.mu.Lock()
	s.files[stored] = info
	s.mu.Unlock()

	fmt.Printf("[Workspace] Stored %s (%s)\n", stored, info.SizeHuman)
	return info, nil
}

// SaveBytes writes an in-memory file into the workspace.
func (s *LocalStore) SaveBytes(prefix, name string, data []byte) (*models.FileInfo, error) {
	return s.Save(prefix, name, bytes.NewReader(data))
}

// Copy duplicates a stored file under a new prefix, keeping its original name.
func (s *LocalStore) Copy(stored, prefix string) (*models.FileInfo, error) {
	src, err := s.GetFilePath(stored)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	return s.Save(prefix, OriginalName(stored), in)
}

// Get retrieves file metadata by stored name.
func (s *LocalStore) Get(stored string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[stored]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, stored)
	}

	return info, nil
}

// List returns every workspace file sorted by the timestamp embedded in its name.
func (s *LocalStore) List() ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Timestamp == list[j].Timestamp {
			return list[i].StoredFilename < list[j].StoredFilename
		}
		return list[i].Timestamp < list[j].Timestamp
	})

	return list, nil
}

// GetByIndex returns the file at a position of the sorted listing.
func (s *LocalStore) GetByIndex(index int) (*models.FileInfo, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return list[index], nil
}

// Latest returns the newest file with the given prefix.
func (s *LocalStore) Latest(prefix string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.FileInfo
	for stored, info := range s.files {
		if !strings.HasPrefix(stored, prefix+"_") {
			continue
		}
		if latest == nil || info.Timestamp > latest.Timestamp {
			latest = info
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no %s files", ErrNotFound, prefix)
	}
	return latest, nil
}

// Delete removes a file from the workspace.
func (s *LocalStore) Delete(stored string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[stored]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, stored)
	}

	path := filepath.Join(s.workspaceDir, stored)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, stored)
	return nil
}

// Clear deletes every workspace file. It returns how many were removed and the per-file failures.
func (s *LocalStore) Clear() (int, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	cleaned := 0
	for stored := range s.files {
		path := filepath.Join(s.workspaceDir, stored)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("%s: %w", stored, err))
			continue
		}
		delete(s.files, stored)
		cleaned++
	}

	// Only the contents go; the directory itself stays usable for new uploads
	if entries, err := os.ReadDir(s.chunkDir); err == nil {
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(s.chunkDir, e.Name())); err != nil {
				errs = append(errs, fmt.Errorf("chunks %s: %w", e.Name(), err))
			}
		}
	}
	fmt.Printf("[Workspace] Cleared %d files (%d errors)\n", cleaned, len(errs))
	return cleaned, errs
}

// GetFilePath returns the absolute path to a stored file.
func (s *LocalStore) GetFilePath(stored string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[stored]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, stored)
	}

	return filepath.Join(s.workspaceDir, stored), nil
}

// RegisterFile refreshes the record of a stored file, typically after it was rewritten in place.
func (s *LocalStore) RegisterFile(info *models.FileInfo) {
	if info == nil {
		return
	}
	path := filepath.Join(s.workspaceDir, info.StoredFilename)
	if fi, err := os.Stat(path); err == nil {
		info.Size = fi.Size()
		info.SizeHuman = humanize.IBytes(uint64(fi.Size()))
		info.ModTime = fi.ModTime()
	}

	s.mu.Lock()
	s.files[info.StoredFilename] = info
	s.mu.Unlock()
}

// ValidUploadID reports whether id is safe to use as a chunk directory name.
func ValidUploadID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// SaveChunk saves a single chunk to a temporary location.
func (s *LocalStore) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if !ValidUploadID(uploadID) {
		return fmt.Errorf("%w: %q", ErrInvalidUploadID, uploadID)
	}
	chunkDir := filepath.Join(s.chunkDir, uploadID)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// CompleteChunkedUpload assembles all chunks into a final workspace file.
func (s *LocalStore) CompleteChunkedUpload(uploadID, prefix, name string, totalChunks int) (*models.FileInfo, error) {
	if !ValidUploadID(uploadID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUploadID, uploadID)
	}
	chunkDir := filepath.Join(s.chunkDir, uploadID)

	readers := make([]io.Reader, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		in, err := os.Open(filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i)))
		if err != nil {
			for _, r := range readers {
				r.(*os.File).Close()
			}
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}
		readers = append(readers, in)
	}
	defer func() {
		for _, r := range readers {
			r.(*os.File).Close()
		}
	}()

	info, err := s.Save(prefix, name, io.MultiReader(readers...))
	if err != nil {
		return nil, err
	}

	// Cleanup chunks
	os.RemoveAll(chunkDir)

	return info, nil
}

// DiscardChunks drops the chunks of an abandoned upload.
func (s *LocalStore) DiscardChunks(uploadID string) error {
	if !ValidUploadID(uploadID) {
		return fmt.Errorf("%w: %q", ErrInvalidUploadID, uploadID)
	}
	return os.RemoveAll(filepath.Join(s.chunkDir, uploadID))
}

// DebugInfo reports the workspace state for troubleshooting.
func (s *LocalStore) DebugInfo() map[string]interface{} {
	list, _ := s.List()

	var total int64
	names := make([]string, 0, len(list))
	for _, f := range list {
		total += f.Size
		names = append(names, f.StoredFilename)
	}

	_, statErr := os.Stat(s.workspaceDir)
	return map[string]interface{}{
		"workspace_dir":    s.workspaceDir,
		"workspace_exists": statErr == nil,
		"chunk_dir":        s.chunkDir,
		"file_count":       len(list),
		"total_size":       total,
		"total_size_human": humanize.IBytes(uint64(total)),
		"files":            names,
	}
}
