package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

// Defaults applied when Config fields are zero.
const (
	DefaultMaxSessions      = 20
	DefaultSessionMaxAge    = 60 * time.Minute
	DefaultDebounce         = 800 * time.Millisecond
	DefaultBatchConcurrency = 4
)

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrNotFound        = errors.New("session not found")
	ErrIndexOutOfRange = errors.New("file index out of range")
	ErrEmptyPatch      = errors.New("edit changes nothing")
	ErrBlankField      = errors.New("text fields cannot be cleared")
)

// Store is the part of the workspace the manager writes through.
type Store interface {
	Copy(stored, prefix string) (*models.FileInfo, error)
	GetFilePath(stored string) (string, error)
	Delete(stored string) error
}

// Tagger writes metadata into an audio file.
type Tagger interface {
	Apply(path string, meta *models.AudioMetadata) error
}

// Recorder receives every completed save.
type Recorder interface {
	Record(ctx context.Context, rec *models.EditRecord) error
}

// Config tunes a Manager.
type Config struct {
	MaxSessions      int
	Debounce         time.Duration
	BatchConcurrency int
}

// Manager owns the editing sessions: the ordered file list, the current
// index and the debounced saves that push edits into updated_ copies.
type Manager struct {
	sessions map[string]*state
	mu       sync.Mutex
	store    Store
	tagger   Tagger
	recorder Recorder
	cfg      Config
}

type state struct {
	id           string
	files        []*entry
	current      int
	batch        bool
	createdAt    time.Time
	lastAccessed time.Time
	closed       bool
	keepFiles    bool
}

type entry struct {
	meta   models.FileMetadata
	timer  *time.Timer
	dirty  bool
	fields map[string]bool
	batch  bool

	// dropped is set when the workspace was cleared under the entry
	dropped bool

	// saveMu serializes saves of one entry so updated copies replace each other in order
	saveMu sync.Mutex
}

// NewManager creates a session manager. recorder may be nil.
func NewManager(store Store, tagger Tagger, recorder Recorder, cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	return &Manager{
		sessions: make(map[string]*state),
		store:    store,
		tagger:   tagger,
		recorder: recorder,
		cfg:      cfg,
	}
}

// shortID safely truncates an ID for logging
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Create starts an empty session, evicting the least recently used one when at the limit.
func (m *Manager) Create() *models.EditSession {
	m.evictIfNeeded()

	now := time.Now()
	st := &state{
		id:           uuid.New().String(),
		createdAt:    now,
		lastAccessed: now,
	}

	m.mu.Lock()
	m.sessions[st.id] = st
	snap := st.snapshot()
	m.mu.Unlock()

	fmt.Printf("[Session %s] Created\n", shortID(st.id))
	return snap
}

func (m *Manager) evictIfNeeded() {
	m.mu.Lock()
	if len(m.sessions) < m.cfg.MaxSessions {
		m.mu.Unlock()
		return
	}

	states := make([]*state, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].lastAccessed.Before(states[j].lastAccessed)
	})

	toFree := len(m.sessions) - m.cfg.MaxSessions + 1
	var evicted []*state
	for _, st := range states[:toFree] {
		delete(m.sessions, st.id)
		evicted = append(evicted, st)
		fmt.Printf("[Manager] Evicted idle session %s to stay under %d sessions\n", shortID(st.id), m.cfg.MaxSessions)
	}
	m.mu.Unlock()

	for _, st := range evicted {
		go m.retire(st)
	}
}

// retire flushes whatever is pending on a session that left the map.
func (m *Manager) retire(st *state) {
	if err := m.flushState(context.Background(), st); err != nil {
		fmt.Printf("[Session %s] Flush on retire failed: %v\n", shortID(st.id), err)
	}
	m.mu.Lock()
	st.closed = true
	st.keepFiles = true
	m.mu.Unlock()
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (*models.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st.snapshot(), nil
}

// Touch marks the session as in use.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	st.lastAccessed = time.Now()
	return true
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// mutate runs fn on a live session under the lock and returns the resulting snapshot.
func (m *Manager) mutate(id string, fn func(st *state) error) (*models.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	st.lastAccessed = time.Now()
	if err := fn(st); err != nil {
		return nil, err
	}
	return st.snapshot(), nil
}

// AddFiles appends entries. On an empty session the first new entry becomes current.
func (m *Manager) AddFiles(id string, files []models.FileMetadata) (*models.EditSession, error) {
	return m.mutate(id, func(st *state) error {
		wasEmpty := len(st.files) == 0
		for _, f := range files {
			st.files = append(st.files, &entry{meta: f})
		}
		if wasEmpty {
			st.current = 0
		}
		return nil
	})
}

// SetCurrent moves the cursor. Indices outside [0, len) are rejected.
func (m *Manager) SetCurrent(id string, index int) (*models.EditSession, error) {
	return m.mutate(id, func(st *state) error {
		if index < 0 || index >= len(st.files) {
			return fmt.Errorf("%w: %d (have %d files)", ErrIndexOutOfRange, index, len(st.files))
		}
		st.current = index
		return nil
	})
}

// Next advances the cursor, staying on the last entry.
func (m *Manager) Next(id string) (*models.EditSession, error) {
	return m.mutate(id, func(st *state) error {
		if st.current < len(st.files)-1 {
			st.current++
		}
		return nil
	})
}

// Prev moves the cursor back, staying on the first entry.
func (m *Manager) Prev(id string) (*models.EditSession, error) {
	return m.mutate(id, func(st *state) error {
		if st.current > 0 {
			st.current--
		}
		return nil
	})
}

// Remove drops an entry and keeps the cursor inside the list.
func (m *Manager) Remove(id string, index int) (*models.EditSession, error) {
	return m.mutate(id, func(st *state) error {
		if index < 0 || index >= len(st.files) {
			return fmt.Errorf("%w: %d (have %d files)", ErrIndexOutOfRange, index, len(st.files))
		}
		e := st.files[index]
		if e.timer != nil {
			e.timer.Stop()
		}
		e.dirty = false

		st.files = append(st.files[:index], st.files[index+1:]...)
		st.clampCurrent(index)
		return nil
	})
}

// SetBatchMode switches batch editing on or off.
func (m *Manager) SetBatchMode(id string, enabled bool) (*models.EditSession, error) {
	return m.mutate(id, func(st *state) error {
		st.batch = enabled
		return nil
	})
}

// Edit applies patch to entry index right away and schedules its save. In
// batch mode the shared fields go to every entry; title and track only to index.
func (m *Manager) Edit(id string, index int, patch models.MetadataPatch) (*models.EditSession, error) {
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if name := patch.BlankField(); name != "" {
		return nil, fmt.Errorf("%w: %s", ErrBlankField, name)
	}
	return m.mutate(id, func(st *state) error {
		if index < 0 || index >= len(st.files) {
			return fmt.Errorf("%w: %d (have %d files)", ErrIndexOutOfRange, index, len(st.files))
		}

		target := st.files[index]
		patch.Apply(&target.meta)
		m.schedule(st, target, patch.Fields())

		if st.batch {
			shared := patch.Shared()
			if !shared.IsEmpty() {
				for i, e := range st.files {
					if i == index {
						continue
					}
					shared.Apply(&e.meta)
					m.schedule(st, e, shared.Fields())
				}
			}
		}
		return nil
	})
}

// schedule (re)starts the debounce timer of e. Caller holds m.mu.
func (m *Manager) schedule(st *state, e *entry, fields []string) {
	if e.fields == nil {
		e.fields = make(map[string]bool)
	}
	for _, f := range fields {
		e.fields[f] = true
	}
	e.dirty = true
	e.batch = e.batch || st.batch

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(m.cfg.Debounce, func() {
		if err := m.save(context.Background(), st, e); err != nil {
			fmt.Printf("[Session %s] Auto-save of %s failed: %v\n", shortID(st.id), e.meta.Filename, err)
		}
	})
}

// save writes the latest metadata of e into a fresh updated_ copy of its source.
func (m *Manager) save(ctx context.Context, st *state, e *entry) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	m.mu.Lock()
	if !e.dirty {
		m.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	meta := e.meta
	fields := make([]string, 0, len(e.fields))
	for f := range e.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	batch := e.batch
	e.dirty = false
	e.fields = nil
	e.batch = false
	m.mu.Unlock()

	start := time.Now()
	updated, err := m.writeCopy(&meta)

	rec := &models.EditRecord{
		SessionID:      st.id,
		StoredFilename: meta.StoredFilename,
		Fields:         fields,
		Title:          meta.Title,
		Artist:         meta.Artist,
		Album:          meta.Album,
		BatchMode:      batch,
		DurationMs:     time.Since(start).Milliseconds(),
	}

	if err != nil {
		// Keep the entry pending so the next flush retries it
		m.mu.Lock()
		if !st.closed && !e.dropped {
			e.dirty = true
			if e.fields == nil {
				e.fields = make(map[string]bool)
			}
			for _, f := range fields {
				e.fields[f] = true
			}
		}
		m.mu.Unlock()

		rec.Error = err.Error()
		m.record(ctx, rec)
		return err
	}
	rec.UpdatedFilename = updated

	m.mu.Lock()
	previous := e.meta.UpdatedFilename
	e.meta.UpdatedFilename = updated
	discard := (st.closed && !st.keepFiles) || e.dropped
	m.mu.Unlock()

	if previous != "" && previous != updated {
		if err := m.store.Delete(previous); err != nil && !errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("[Session %s] Warning: failed to remove %s: %v\n", shortID(st.id), previous, err)
		}
	}
	if discard {
		m.store.Delete(updated)
	}

	m.record(ctx, rec)
	fmt.Printf("[Session %s] Saved %s -> %s in %dms\n", shortID(st.id), meta.StoredFilename, updated, rec.DurationMs)
	return nil
}

func (m *Manager) writeCopy(meta *models.FileMetadata) (string, error) {
	if meta.StoredFilename == "" {
		return "", fmt.Errorf("%w: entry %q has no stored file", storage.ErrNotFound, meta.Filename)
	}
	copied, err := m.store.Copy(meta.StoredFilename, storage.PrefixUpdated)
	if err != nil {
		return "", fmt.Errorf("copy source: %w", err)
	}
	path, err := m.store.GetFilePath(copied.StoredFilename)
	if err != nil {
		return "", err
	}
	if err := m.tagger.Apply(path, meta.Audio()); err != nil {
		m.store.Delete(copied.StoredFilename)
		return "", err
	}
	return copied.StoredFilename, nil
}

func (m *Manager) record(ctx context.Context, rec *models.EditRecord) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.recorder.Record(ctx, rec); err != nil {
		fmt.Printf("[Session %s] Warning: failed to record edit: %v\n", shortID(rec.SessionID), err)
	}
}

// Flush runs every pending save now and waits for saves already running.
func (m *Manager) Flush(ctx context.Context, id string) (*models.EditSession, error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if ok {
		st.lastAccessed = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := m.flushState(ctx, st); err != nil {
		return nil, err
	}
	return m.Get(id)
}

func (m *Manager) flushState(ctx context.Context, st *state) error {
	m.mu.Lock()
	entries := make([]*entry, len(st.files))
	copy(entries, st.files)
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.BatchConcurrency)
	for _, e := range entries {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return m.save(ctx, st, e)
		})
	}
	return g.Wait()
}

// Close ends a session. Pending saves are dropped and, unless keepFiles is
// set, the updated copies the session produced are deleted.
func (m *Manager) Close(id string, keepFiles bool) error {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	st.closed = true
	st.keepFiles = keepFiles

	var updated []string
	for _, e := range st.files {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.dirty = false
		if e.meta.UpdatedFilename != "" {
			updated = append(updated, e.meta.UpdatedFilename)
		}
	}
	st.files = nil
	st.current = 0
	m.mu.Unlock()

	if keepFiles {
		fmt.Printf("[Session %s] Closed, kept %d updated files\n", shortID(id), len(updated))
		return nil
	}
	for _, name := range updated {
		if err := m.store.Delete(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("[Session %s] Warning: failed to remove %s: %v\n", shortID(id), name, err)
		}
	}
	fmt.Printf("[Session %s] Closed, removed %d updated files\n", shortID(id), len(updated))
	return nil
}

// ClearFiles empties every session after the workspace was wiped. Pending
// saves are cancelled and a save already running discards its copy. The
// sessions themselves stay open. It returns how many entries were dropped.
func (m *Manager) ClearFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for _, st := range m.sessions {
		for _, e := range st.files {
			if e.timer != nil {
				e.timer.Stop()
			}
			e.dirty = false
			e.dropped = true
		}
		dropped += len(st.files)
		st.files = nil
		st.current = 0
	}
	if dropped > 0 {
		fmt.Printf("[Manager] Dropped %d entries from %d sessions after workspace clear\n", dropped, len(m.sessions))
	}
	return dropped
}

// CleanupOldSessions drops sessions idle for longer than maxAge. Pending
// saves are flushed first and updated files are kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	var stale []*state
	for id, st := range m.sessions {
		// Don't clean up sessions that are actively being used
		if st.lastAccessed.After(keepAliveCutoff) {
			continue
		}
		if st.lastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			stale = append(stale, st)
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
				shortID(id), time.Since(st.lastAccessed).Round(time.Second))
		}
	}
	m.mu.Unlock()

	for _, st := range stale {
		m.retire(st)
	}
}

// FlushAll flushes every session. Used on shutdown.
func (m *Manager) FlushAll(ctx context.Context) {
	m.mu.Lock()
	states := make([]*state, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	m.mu.Unlock()

	for _, st := range states {
		if err := m.flushState(ctx, st); err != nil {
			fmt.Printf("[Session %s] Flush failed: %v\n", shortID(st.id), err)
		}
	}
}

// clampCurrent keeps the cursor valid after removing index removed.
func (st *state) clampCurrent(removed int) {
	if len(st.files) == 0 {
		st.current = 0
		return
	}
	if removed < st.current {
		st.current--
	}
	if st.current >= len(st.files) {
		st.current = len(st.files) - 1
	}
}

func (st *state) snapshot() *models.EditSession {
	snap := &models.EditSession{
		ID:           st.id,
		Files:        make([]models.FileMetadata, len(st.files)),
		CurrentIndex: st.current,
		BatchMode:    st.batch,
		CreatedAt:    st.createdAt,
		LastAccessed: st.lastAccessed,
	}
	for i, e := range st.files {
		snap.Files[i] = e.meta
		if e.dirty {
			snap.PendingSaves++
		}
	}
	return snap
}
