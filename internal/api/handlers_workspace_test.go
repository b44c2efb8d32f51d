package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
)

func seedWorkspace(env *testEnv) {
	env.store.AddFile(storage.PrefixUpload, "one.mp3", []byte("1"))
	env.store.AddFile(storage.PrefixYouTube, "two.mp3", []byte("22"))
	env.store.AddFile(storage.PrefixUpdated, "three.mp3", []byte("333"))
	env.store.AddFile(storage.PrefixUpdated, "four.mp3", []byte("4444"))
}

func TestWorkspaceHandler_HandleListFiles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/workspace/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"files":[]`)

	seedWorkspace(env)
	rec = env.serve(httptest.NewRequest(http.MethodGet, "/api/workspace/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listing models.WorkspaceListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.True(t, listing.Success)
	assert.Equal(t, 4, listing.TotalFiles)
	assert.Equal(t, 1, listing.UploadedFiles)
	assert.Equal(t, 1, listing.DownloadedFiles)
	assert.Equal(t, 2, listing.UpdatedFiles)
	assert.Equal(t, "one.mp3", listing.Files[0].Filename)
}

func TestWorkspaceHandler_HandleListFilesMsgpack(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspace(env)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/workspace/files/msgpack", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

	var listing models.WorkspaceListing
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 4, listing.TotalFiles)
	assert.Equal(t, models.FileTypeDownloaded, listing.Files[1].Type)
}

func TestWorkspaceHandler_HandleGetFileByIndex(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspace(env)

	tests := []struct {
		index      string
		wantStatus int
		wantName   string
	}{
		{"0", http.StatusOK, "one.mp3"},
		{"3", http.StatusOK, "four.mp3"},
		{"4", http.StatusNotFound, ""},
		{"-1", http.StatusNotFound, ""},
		{"abc", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/workspace/files/"+tt.index, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantName != "" {
				var info models.FileInfo
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
				assert.Equal(t, tt.wantName, info.Filename)
			}
		})
	}
}

func TestWorkspaceHandler_HandleArchive(t *testing.T) {
	tests := []struct {
		name       string
		seed       bool
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"empty workspace", false, http.MethodGet, "/api/workspace/archive", "", http.StatusNotFound, "no files available"},
		{"all files", true, http.MethodGet, "/api/workspace/archive", "", http.StatusOK, "PK-mock-4"},
		{"query selection", true, http.MethodGet, "/api/workspace/archive?indices=0,%202", "", http.StatusOK, "PK-mock-2"},
		{"json selection", true, http.MethodPost, "/api/workspace/archive", `{"indices":[1]}`, http.StatusOK, "PK-mock-1"},
		{"post without body", true, http.MethodPost, "/api/workspace/archive", "", http.StatusOK, "PK-mock-4"},
		{"out of range selection", true, http.MethodGet, "/api/workspace/archive?indices=9", "", http.StatusBadRequest, "no valid files"},
		{"malformed indices", true, http.MethodGet, "/api/workspace/archive?indices=1,x", "", http.StatusBadRequest, "comma separated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.seed {
				seedWorkspace(env)
			}
			rec := env.serve(jsonRequest(tt.method, tt.target, tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Header().Get("Content-Disposition"), archiveFilename)
			} else {
				assert.Empty(t, rec.Header().Get("Content-Disposition"))
			}
		})
	}
}

func TestParseIndices(t *testing.T) {
	got, err := parseIndices(" 3, 1,,0 ")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 0}, got)

	_, err = parseIndices("1;2")
	assert.Error(t, err)
}

func TestWorkspaceHandler_HandleClear(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspace(env)

	rec := env.serve(httptest.NewRequest(http.MethodDelete, "/api/workspace", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_count":4`)
	assert.Equal(t, 0, env.store.GetFileCount())

	env.deps.AllowWorkspaceClear = false
	h := NewWorkspaceHandler(env.deps)
	seedWorkspace(env)
	req := httptest.NewRequest(http.MethodDelete, "/api/workspace", nil)
	assertAPIError(t, h.HandleClear(env.e.NewContext(req, httptest.NewRecorder())), http.StatusForbidden, "FORBIDDEN")
	assert.Equal(t, 4, env.store.GetFileCount())
}

func TestWorkspaceHandler_HandleClearEmptiesSessions(t *testing.T) {
	env := newTestEnv(t)
	info := env.store.AddFile(storage.PrefixUpload, "song.mp3", []byte("1"))
	snap := env.sessions.Create()
	_, err := env.sessions.AddFiles(snap.ID, []models.FileMetadata{
		models.NewFileMetadata(info.Filename, info.StoredFilename, &models.AudioMetadata{Title: "A"}, models.ProvenanceUploaded),
	})
	require.NoError(t, err)
	title := "B"
	_, err = env.sessions.Edit(snap.ID, 0, models.MetadataPatch{Title: &title})
	require.NoError(t, err)

	rec := env.serve(httptest.NewRequest(http.MethodDelete, "/api/workspace", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_files":1`)

	got, err := env.sessions.Get(snap.ID)
	require.NoError(t, err, "the session itself stays open")
	assert.Empty(t, got.Files)
	assert.Equal(t, 0, got.CurrentIndex)
	assert.Equal(t, 0, got.PendingSaves)

	// The cancelled save must not recreate files in the emptied workspace
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, env.store.GetFileCount())
}

func TestWorkspaceHandler_HandleDebug(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.Create()

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/workspace/debug", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, float64(1), info["session_count"])
	assert.Contains(t, info, "debug_enabled")
	assert.Equal(t, true, info["mock"])
}

func TestWorkspaceHandler_HandleFileHistory(t *testing.T) {
	env := newTestEnv(t)
	info := env.store.AddFile(storage.PrefixUpload, "song.mp3", []byte("1"))

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/api/workspace/history/"+info.StoredFilename, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "history disabled")

	hist := &fakeHistory{records: []models.EditRecord{{ID: 1, StoredFilename: info.StoredFilename, Title: "A"}}}
	env.deps.History = hist
	h := NewWorkspaceHandler(env.deps)

	call := func(filename, query string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodGet, "/api/workspace/history/"+filename+query, nil)
		rec := httptest.NewRecorder()
		c := env.e.NewContext(req, rec)
		c.SetParamNames("filename")
		c.SetParamValues(filename)
		return rec, h.HandleFileHistory(c)
	}

	rec, err := call(info.StoredFilename, "?limit=3")
	require.NoError(t, err)
	assert.Equal(t, info.StoredFilename, hist.file)
	assert.Equal(t, 3, hist.limit)

	var resp struct {
		StoredFilename string              `json:"storedFilename"`
		Edits          []models.EditRecord `json:"edits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, info.StoredFilename, resp.StoredFilename)
	assert.Len(t, resp.Edits, 1)

	_, err = call("missing.mp3", "")
	assertAPIError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = call(info.StoredFilename, "?limit=0")
	assertAPIError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
}
