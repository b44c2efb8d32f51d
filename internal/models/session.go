package models

import "time"

// EditSession is a snapshot of an editing session as returned to the frontend.
type EditSession struct {
	ID           string         `json:"id"`
	Files        []FileMetadata `json:"files"`
	CurrentIndex int            `json:"currentIndex"`
	BatchMode    bool           `json:"batchMode"`
	PendingSaves int            `json:"pendingSaves"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastAccessed time.Time      `json:"lastAccessed"`
}

// Current returns the entry under the cursor, or nil for an empty session.
func (s *EditSession) Current() *FileMetadata {
	if len(s.Files) == 0 || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Files) {
		return nil
	}
	return &s.Files[s.CurrentIndex]
}

// EditRecord is one completed tag write, as stored in the edit history.
type EditRecord struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"sessionId"`
	StoredFilename  string    `json:"storedFilename"`
	UpdatedFilename string    `json:"updatedFilename"`
	Fields          []string  `json:"fields"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album"`
	BatchMode       bool      `json:"batchMode"`
	DurationMs      int64     `json:"durationMs"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
