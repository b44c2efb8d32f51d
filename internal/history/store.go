// Package history keeps an append-only log of tag writes in DuckDB.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/audio-tag-editor/backend/internal/models"
)

// DefaultLimit caps history queries when the caller passes no limit.
const DefaultLimit = 100

// ErrClosed is returned after Close.
var ErrClosed = errors.New("history store closed")

// Options tunes the DuckDB connection.
type Options struct {
	Threads     int    // PRAGMA threads
	MemoryLimit string // PRAGMA memory_limit, e.g. "256MB"
}

// Store is a DuckDB-backed edit log.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string, opts Options) (*Store, error) {
	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "256MB"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	fmt.Printf("[History] Opening database at: %s\n", dbPath)
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[History] Pragma warning: %v\n", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	schema := []string{
		`CREATE SEQUENCE IF NOT EXISTS edit_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS edits (
			id               BIGINT PRIMARY KEY DEFAULT nextval('edit_id_seq'),
			session_id       VARCHAR NOT NULL,
			stored_filename  VARCHAR NOT NULL,
			updated_filename VARCHAR,
			fields           VARCHAR,
			title            VARCHAR,
			artist           VARCHAR,
			album            VARCHAR,
			batch_mode       BOOLEAN NOT NULL DEFAULT false,
			duration_ms      BIGINT,
			error            VARCHAR,
			created_at       TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edits_session ON edits(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edits_file ON edits(stored_filename)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Record appends an edit and fills in its ID and creation time.
func (s *Store) Record(ctx context.Context, rec *models.EditRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO edits (session_id, stored_filename, updated_filename, fields, title, artist, album,
			batch_mode, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		rec.SessionID, rec.StoredFilename, rec.UpdatedFilename, strings.Join(rec.Fields, ","),
		rec.Title, rec.Artist, rec.Album, rec.BatchMode, rec.DurationMs, rec.Error, rec.CreatedAt.UTC(),
	)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("failed to record edit: %w", err)
	}
	return nil
}

// ForSession returns the newest edits of a session first.
func (s *Store) ForSession(ctx context.Context, sessionID string, limit int) ([]models.EditRecord, error) {
	return s.query(ctx, "session_id = ?", sessionID, limit)
}

// ForFile returns the newest edits of a source file first.
func (s *Store) ForFile(ctx context.Context, storedFilename string, limit int) ([]models.EditRecord, error) {
	return s.query(ctx, "stored_filename = ?", storedFilename, limit)
}

// Count returns the number of recorded edits.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edits").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, where string, arg any, limit int) ([]models.EditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, stored_filename, updated_filename, fields, title, artist, album,
			batch_mode, duration_ms, error, created_at
		FROM edits
		WHERE `+where+`
		ORDER BY id DESC
		LIMIT ?`, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query edits: %w", err)
	}
	defer rows.Close()

	records := make([]models.EditRecord, 0)
	for rows.Next() {
		var (
			rec                                       models.EditRecord
			updated, fields, title, artist, album, ed sql.NullString
			duration                                  sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StoredFilename, &updated, &fields,
			&title, &artist, &album, &rec.BatchMode, &duration, &ed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan edit: %w", err)
		}
		rec.UpdatedFilename = updated.String
		if fields.String != "" {
			rec.Fields = strings.Split(fields.String, ",")
		}
		rec.Title = title.String
		rec.Artist = artist.String
		rec.Album = album.String
		rec.DurationMs = duration.Int64
		rec.Error = ed.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database. The file is kept.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
