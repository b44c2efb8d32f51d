package upload

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusExtracting    Status = "extracting"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job represents an async upload processing job.
type Job struct {
	ID             string                `json:"id"`
	UploadID       string                `json:"uploadId"`
	FileName       string                `json:"fileName"`
	TotalChunks    int                   `json:"totalChunks"`
	OriginalSize   int64                 `json:"originalSize"`
	CompressedSize int64                 `json:"compressedSize"`
	Encoding       string                `json:"encoding"`
	SessionID      string                `json:"sessionId,omitempty"`
	Status         Status                `json:"status"`
	Progress       float64               `json:"progress"`
	Stage          string                `json:"stage"`         // Current stage description
	StageProgress  float64               `json:"stageProgress"` // Progress within current stage
	FileInfo       *models.FileInfo      `json:"fileInfo,omitempty"`
	Metadata       *models.AudioMetadata `json:"metadata,omitempty"`
	Error          string                `json:"error,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	CompletedAt    *time.Time            `json:"completedAt,omitempty"`
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// Request describes a finished chunked upload to process.
type Request struct {
	UploadID       string `json:"uploadId"`
	FileName       string `json:"fileName"`
	TotalChunks    int    `json:"totalChunks"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Encoding       string `json:"encoding"`
	SessionID      string `json:"sessionId,omitempty"`
}

// Store defines the interface needed from storage layer.
type Store interface {
	CompleteChunkedUpload(uploadID, prefix, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(stored string) (string, error)
	RegisterFile(info *models.FileInfo)
	Delete(stored string) error
}

// Extractor reads the tags of an assembled file.
type Extractor interface {
	Extract(path string) (*models.AudioMetadata, error)
}

// Sessions receives processed files when a job names a session.
type Sessions interface {
	AddFiles(id string, files []models.FileMetadata) (*models.EditSession, error)
}

// Manager handles async upload processing.
type Manager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	store     Store
	extractor Extractor
	sessions  Sessions
}

// NewManager creates a new upload processing manager. sessions may be nil.
func NewManager(store Store, extractor Extractor, sessions Sessions) *Manager {
	return &Manager{
		jobs:      make(map[string]*Job),
		store:     store,
		extractor: extractor,
		sessions:  sessions,
	}
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(req Request) Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       req.UploadID,
		FileName:       req.FileName,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
		SessionID:      req.SessionID,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snap := *job
	m.mu.Unlock()

	go m.processJob(job)

	return snap
}

// GetJob returns a copy of the job.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func isGzip(encoding string) bool {
	return encoding == "gzip" || encoding == "binary-gzip"
}

// processJob handles the actual async processing.
func (m *Manager) processJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			m.markJobError(job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	fmt.Printf("[UploadJob %s] Starting processing: %s\n", job.ID[:8], job.FileName)

	// Stage 1: Assemble chunks
	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.UploadID, storage.PrefixUpload, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 100)
	fmt.Printf("[UploadJob %s] Chunks assembled: %s (%s)\n", job.ID[:8], info.StoredFilename, humanize.IBytes(uint64(info.Size)))

	// Stage 2: Decompress if needed
	if isGzip(job.Encoding) {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)

		if err := m.decompressFileWithProgress(job, info.StoredFilename); err != nil {
			// The file may not have been compressed after all; extraction decides
			fmt.Printf("[UploadJob %s] Warning: failed to decompress file %s: %v\n", job.ID[:8], info.StoredFilename, err)
		} else {
			m.store.RegisterFile(info)
			fmt.Printf("[UploadJob %s] Decompressed %s to %s\n", job.ID[:8], info.StoredFilename, humanize.IBytes(uint64(info.Size)))
		}

		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}

	// Stage 3: Read tags
	m.updateJobStatus(job, StatusExtracting, "reading tags", 0)

	path, err := m.store.GetFilePath(info.StoredFilename)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("assembled file missing: %v", err))
		return
	}
	meta, err := m.extractor.Extract(path)
	if err != nil {
		m.store.Delete(info.StoredFilename)
		m.markJobError(job, fmt.Sprintf("could not read audio file %s: %v", job.FileName, err))
		return
	}

	if job.SessionID != "" && m.sessions != nil {
		entry := models.NewFileMetadata(info.Filename, info.StoredFilename, meta, models.ProvenanceUploaded)
		entry.Platform = string(models.PlatformUpload)
		if _, err := m.sessions.AddFiles(job.SessionID, []models.FileMetadata{entry}); err != nil {
			// The file stays in the workspace; only the session link failed
			fmt.Printf("[UploadJob %s] Warning: could not add to session %s: %v\n", job.ID[:8], job.SessionID, err)
		}
	}

	m.updateJobStatus(job, StatusExtracting, "reading tags", 100)

	m.mu.Lock()
	job.FileInfo = info
	job.Metadata = meta
	m.mu.Unlock()

	m.markJobComplete(job)
	fmt.Printf("[UploadJob %s] Processing complete: %s\n", job.ID[:8], info.StoredFilename)
}

// decompressFileWithProgress decompresses a gzip file in place with progress tracking.
func (m *Manager) decompressFileWithProgress(job *Job, stored string) error {
	path, err := m.store.GetFilePath(stored)
	if err != nil {
		return err
	}

	compressedFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressedFile.Close()

	// Check gzip magic
	magic := make([]byte, 2)
	if _, err := io.ReadFull(compressedFile, magic); err != nil {
		return err
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip file")
	}
	if _, err := compressedFile.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader, err := gzip.NewReader(compressedFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	buf := make([]byte, 1024*1024)
	var written int64
	lastProgressUpdate := time.Now()

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := outFile.Write(buf[:n]); writeErr != nil {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("write error: %w", writeErr)
			}
			written += int64(n)

			if job.OriginalSize > 0 && time.Since(lastProgressUpdate) > 100*time.Millisecond {
				progress := float64(written) / float64(job.OriginalSize) * 100
				if progress > 99 {
					progress = 99
				}
				m.updateJobStatus(job, StatusDecompressing, "decompressing file", progress)
				lastProgressUpdate = time.Now()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("read error: %w", readErr)
			}
			break
		}
	}

	outFile.Close()

	if job.OriginalSize > 0 && written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}

	compressedFile.Close()
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Assembling: 0-30%, Decompressing: 30-70%, Extracting: 70-100%
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.3
	case StatusDecompressing:
		job.Progress = 30 + stageProgress*0.4
	case StatusExtracting:
		job.Progress = 70 + stageProgress*0.25
	case StatusComplete:
		job.Progress = 100
	}
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = "complete"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	fmt.Printf("[UploadJob %s] Error: %s\n", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Done() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
