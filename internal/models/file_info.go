package models

import "time"

// FileType is the workspace classification derived from the stored name prefix.
type FileType string

const (
	FileTypeUploaded   FileType = "uploaded"
	FileTypeDownloaded FileType = "downloaded"
	FileTypeUpdated    FileType = "updated"
)

// FileInfo represents a file held in the workspace directory.
type FileInfo struct {
	ID             string    `json:"id" msgpack:"id"`
	Filename       string    `json:"filename" msgpack:"filename"`              // original name shown to the user
	StoredFilename string    `json:"stored_filename" msgpack:"stored_filename"` // prefix_timestamp_clean.ext
	Type           FileType  `json:"type" msgpack:"type"`
	Platform       string    `json:"platform" msgpack:"platform"` // upload, youtube, soundcloud
	Size           int64     `json:"size" msgpack:"size"`
	SizeHuman      string    `json:"size_human" msgpack:"size_human"`
	Timestamp      int64     `json:"timestamp" msgpack:"timestamp"` // Unix ms embedded in the stored name
	ModTime        time.Time `json:"mtime" msgpack:"mtime"`
}

// WorkspaceListing is the response body of the workspace file listing.
type WorkspaceListing struct {
	Success         bool        `json:"success" msgpack:"success"`
	Files           []*FileInfo `json:"files" msgpack:"files"`
	TotalFiles      int         `json:"total_files" msgpack:"total_files"`
	UploadedFiles   int         `json:"uploaded_files" msgpack:"uploaded_files"`
	DownloadedFiles int         `json:"downloaded_files" msgpack:"downloaded_files"`
	UpdatedFiles    int         `json:"updated_files" msgpack:"updated_files"`
}

// NewWorkspaceListing builds a listing with per-type counts.
func NewWorkspaceListing(files []*FileInfo) *WorkspaceListing {
	l := &WorkspaceListing{
		Success:    true,
		Files:      files,
		TotalFiles: len(files),
	}
	if l.Files == nil {
		l.Files = []*FileInfo{}
	}
	for _, f := range files {
		switch f.Type {
		case FileTypeUploaded:
			l.UploadedFiles++
		case FileTypeDownloaded:
			l.DownloadedFiles++
		case FileTypeUpdated:
			l.UpdatedFiles++
		}
	}
	return l
}
