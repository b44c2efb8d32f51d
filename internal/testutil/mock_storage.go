// mock_storage.go - Mock workspace implementation for testing
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

// MockStorage implements storage.Store for testing. File contents live in
// memory, or on disk under a temp directory when created with
// NewMockStorageWithTempDir so that tag readers can open them.
type MockStorage struct {
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	chunks   map[string]map[int][]byte // uploadID -> chunkIndex -> data
	tempDir  string
	stamp    int64
	mu       sync.RWMutex

	// Injected failures
	SaveErr   error
	CopyErr   error
	DeleteErr error

	// Deleted records every stored name passed to a successful Delete
	Deleted []string
}

// NewMockStorage creates an in-memory mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
		chunks:   make(map[string]map[int][]byte),
		stamp:    1700000000000,
	}
}

// NewMockStorageWithTempDir creates a mock storage that writes files to tempDir
func NewMockStorageWithTempDir(tempDir string) *MockStorage {
	m := NewMockStorage()
	m.tempDir = tempDir
	return m
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

func (m *MockStorage) Save(prefix, name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(prefix, name, data)
}

func (m *MockStorage) SaveBytes(prefix, name string, data []byte) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefix, name, data)
}

// put stores data under a fresh stored name. Caller holds m.mu.
func (m *MockStorage) put(prefix, name string, data []byte) (*models.FileInfo, error) {
	m.stamp++
	ext := filepath.Ext(name)
	base := storage.CleanFilename(strings.TrimSuffix(filepath.Base(name), ext))
	stored := fmt.Sprintf("%s_%d_%s%s", prefix, m.stamp, base, strings.ToLower(ext))

	if m.tempDir != "" {
		if err := os.WriteFile(filepath.Join(m.tempDir, stored), data, 0644); err != nil {
			return nil, err
		}
	} else {
		m.fileData[stored] = data
	}

	info := newInfo(prefix, stored, m.stamp, int64(len(data)))
	m.files[stored] = info
	return info, nil
}

func newInfo(prefix, stored string, stamp, size int64) *models.FileInfo {
	fileType := models.FileTypeUploaded
	platform := string(models.PlatformUpload)
	switch prefix {
	case storage.PrefixYouTube, storage.PrefixSoundCloud:
		fileType = models.FileTypeDownloaded
		platform = prefix
	case storage.PrefixUpdated:
		fileType = models.FileTypeUpdated
	}
	return &models.FileInfo{
		ID:             fmt.Sprintf("%s_%s", fileType, stored),
		Filename:       storage.OriginalName(stored),
		StoredFilename: stored,
		Type:           fileType,
		Platform:       platform,
		Size:           size,
		SizeHuman:      fmt.Sprintf("%d B", size),
		Timestamp:      stamp,
		ModTime:        time.Now(),
	}
}

func (m *MockStorage) Copy(stored, prefix string) (*models.FileInfo, error) {
	if m.CopyErr != nil {
		return nil, m.CopyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.read(stored)
	if err != nil {
		return nil, err
	}
	return m.put(prefix, storage.OriginalName(stored), data)
}

// read returns the content of a stored file. Caller holds m.mu.
func (m *MockStorage) read(stored string) ([]byte, error) {
	if _, ok := m.files[stored]; !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, stored)
	}
	if m.tempDir != "" {
		return os.ReadFile(filepath.Join(m.tempDir, stored))
	}
	return m.fileData[stored], nil
}

func (m *MockStorage) Get(stored string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[stored]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, stored)
	}
	return file, nil
}

func (m *MockStorage) List() ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]*models.FileInfo, 0, len(m.files))
	for _, file := range m.files {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp < files[j].Timestamp })
	return files, nil
}

func (m *MockStorage) GetByIndex(index int) (*models.FileInfo, error) {
	files, _ := m.List()
	if index < 0 || index >= len(files) {
		return nil, fmt.Errorf("%w: index %d", storage.ErrNotFound, index)
	}
	return files[index], nil
}

func (m *MockStorage) Latest(prefix string) (*models.FileInfo, error) {
	files, _ := m.List()
	for i := len(files) - 1; i >= 0; i-- {
		if strings.HasPrefix(files[i].StoredFilename, prefix+"_") {
			return files[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no %s files", storage.ErrNotFound, prefix)
}

func (m *MockStorage) Delete(stored string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[stored]; !exists {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, stored)
	}
	if m.tempDir != "" {
		os.Remove(filepath.Join(m.tempDir, stored))
	}
	delete(m.files, stored)
	delete(m.fileData, stored)
	m.Deleted = append(m.Deleted, stored)
	return nil
}

func (m *MockStorage) Clear() (int, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.files)
	if m.tempDir != "" {
		for stored := range m.files {
			os.Remove(filepath.Join(m.tempDir, stored))
		}
	}
	m.files = make(map[string]*models.FileInfo)
	m.fileData = make(map[string][]byte)
	m.chunks = make(map[string]map[int][]byte)
	return n, nil
}

func (m *MockStorage) GetFilePath(stored string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[stored]; !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, stored)
	}
	if m.tempDir != "" {
		return filepath.Join(m.tempDir, stored), nil
	}
	return "/mock/path/" + stored, nil
}

func (m *MockStorage) SaveChunk(uploadID string, chunkIndex int, r io.Reader) error {
	if !storage.ValidUploadID(uploadID) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidUploadID, uploadID)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks[uploadID] == nil {
		m.chunks[uploadID] = make(map[int][]byte)
	}
	m.chunks[uploadID][chunkIndex] = data
	return nil
}

func (m *MockStorage) CompleteChunkedUpload(uploadID, prefix, name string, totalChunks int) (*models.FileInfo, error) {
	if !storage.ValidUploadID(uploadID) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidUploadID, uploadID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	uploadChunks, ok := m.chunks[uploadID]
	if !ok {
		return nil, errors.New("upload not found")
	}

	// Concatenate all chunks
	var data bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		chunk, ok := uploadChunks[i]
		if !ok {
			return nil, fmt.Errorf("missing chunk %d", i)
		}
		data.Write(chunk)
	}

	info, err := m.put(prefix, name, data.Bytes())
	if err != nil {
		return nil, err
	}
	delete(m.chunks, uploadID)
	return info, nil
}

func (m *MockStorage) DiscardChunks(uploadID string) error {
	if !storage.ValidUploadID(uploadID) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidUploadID, uploadID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, uploadID)
	return nil
}

// ChunkCount returns how many chunks are held for an upload.
func (m *MockStorage) ChunkCount(uploadID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[uploadID])
}

func (m *MockStorage) RegisterFile(info *models.FileInfo) {
	if info == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[info.StoredFilename] = info
}

func (m *MockStorage) WriteArchive(w io.Writer, indices []int) (int, error) {
	files, _ := m.List()
	if len(files) == 0 {
		return 0, storage.ErrEmptyWorkspace
	}
	count := len(files)
	if indices != nil {
		count = 0
		for _, i := range indices {
			if i >= 0 && i < len(files) {
				count++
			}
		}
	}
	if count == 0 {
		return 0, storage.ErrNoSelection
	}
	// Not a real zip; enough for handlers that only stream it
	fmt.Fprintf(w, "PK-mock-%d", count)
	return count, nil
}

func (m *MockStorage) DebugInfo() map[string]interface{} {
	return map[string]interface{}{
		"mock":       true,
		"file_count": m.GetFileCount(),
	}
}

// Test Helper Methods

// AddFile adds a file directly to the mock under the given prefix
func (m *MockStorage) AddFile(prefix, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.put(prefix, name, data)
	if err != nil {
		panic(fmt.Sprintf("failed to add test file: %v", err))
	}
	return info
}

// GetFileData returns the file content
func (m *MockStorage) GetFileData(stored string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read(stored)
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Has reports whether a stored name exists
func (m *MockStorage) Has(stored string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[stored]
	return ok
}
