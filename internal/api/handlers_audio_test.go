package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/testutil"
)

func TestAudioHandler_HandleUpload(t *testing.T) {
	tests := []struct {
		name       string
		files      []formFile
		wantStatus int
		wantCode   string
		wantStored int
	}{
		{
			name:       "single mp3",
			files:      []formFile{{"file", "song.mp3", testutil.MP3Frame()}},
			wantStatus: http.StatusOK,
			wantStored: 1,
		},
		{
			name: "several files",
			files: []formFile{
				{"files", "a.mp3", testutil.MP3Frame()},
				{"files", "b.flac", []byte("fLaC")},
			},
			wantStatus: http.StatusOK,
			wantStored: 2,
		},
		{
			name:       "unsupported extension",
			files:      []formFile{{"file", "notes.txt", []byte("hello")}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "no files",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "unreadable audio rolls back earlier files",
			files: []formFile{
				{"files", "good.mp3", testutil.MP3Frame()},
				{"files", "broken.mp3", []byte("garbage")},
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "UNPROCESSABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewAudioHandler(env.deps)

			req := multipartRequest(t, "/upload", map[string]string{"note": "x"}, tt.files...)
			rec := httptest.NewRecorder()
			err := h.HandleUpload(env.e.NewContext(req, rec))

			if tt.wantCode != "" {
				assertAPIError(t, err, tt.wantStatus, tt.wantCode)
				if env.store.GetFileCount() != 0 {
					t.Errorf("expected no stored files after failure, got %d", env.store.GetFileCount())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var resp audioUploadResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if !resp.Success {
				t.Error("expected success")
			}
			if len(resp.AllFilesMetadata) != tt.wantStored {
				t.Errorf("expected %d files, got %d", tt.wantStored, len(resp.AllFilesMetadata))
			}
			if !strings.HasPrefix(resp.StoredFilename, storage.PrefixUpload+"_") {
				t.Errorf("stored name %q lacks upload prefix", resp.StoredFilename)
			}
			if resp.Metadata == nil || resp.Metadata.Title != "Song" {
				t.Errorf("unexpected metadata: %+v", resp.Metadata)
			}
			if resp.Platform != "upload" {
				t.Errorf("expected platform upload, got %q", resp.Platform)
			}
		})
	}
}

func TestAudioHandler_HandleUploadIntoSession(t *testing.T) {
	env := newTestEnv(t)
	snap := env.sessions.Create()

	req := multipartRequest(t, "/upload", map[string]string{"session": snap.ID},
		formFile{"file", "song.mp3", testutil.MP3Frame()})
	rec := env.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp audioUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	assert.Len(t, resp.Session.Files, 1)
	assert.Equal(t, 0, resp.Session.CurrentIndex)
	assert.Equal(t, "song.mp3", resp.Session.Files[0].Filename)

	// unknown session is rejected before anything is stored
	req = multipartRequest(t, "/upload", map[string]string{"session": "missing"},
		formFile{"file", "other.mp3", testutil.MP3Frame()})
	rec = env.serve(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, env.store.GetFileCount())
}

func TestAudioHandler_HandleUpdateTags(t *testing.T) {
	tests := []struct {
		name       string
		metadata   string
		filename   string
		wantStatus int
		wantMsg    string
	}{
		{"valid", `{"title":"New","artist":"Someone","year":2021,"track":3}`, "song.mp3", http.StatusOK, "Tags updated successfully"},
		{"invalid json", `{"title":`, "song.mp3", http.StatusBadRequest, "Invalid metadata JSON"},
		{"not an object", `["title"]`, "song.mp3", http.StatusBadRequest, "Metadata must be a JSON object"},
		{"missing metadata", ``, "song.mp3", http.StatusBadRequest, "metadata"},
		{"unsupported format", `{"title":"x"}`, "song.txt", http.StatusBadRequest, "Unsupported file format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			fields := map[string]string{}
			if tt.metadata != "" {
				fields["metadata"] = tt.metadata
			}
			req := multipartRequest(t, "/upload/update-tags", fields, formFile{"file", tt.filename, testutil.MP3Frame()})
			rec := env.serve(req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp updateTagsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "song.mp3", resp.Filename)
			assert.True(t, strings.HasPrefix(resp.UpdatedFilename, storage.PrefixUpdated+"_"))

			applied := env.audio.appliedTo("/mock/path/" + resp.UpdatedFilename)
			require.NotNil(t, applied)
			assert.Equal(t, "New", applied.Title)
			assert.Equal(t, "2021", applied.Year)
			assert.Equal(t, "3", applied.Track)
		})
	}
}

func TestAudioHandler_HandleUpdateTagsApplyFailure(t *testing.T) {
	env := newTestEnv(t)
	env.audio.applyErr = assert.AnError

	req := multipartRequest(t, "/upload/update-tags", map[string]string{"metadata": `{"title":"x"}`},
		formFile{"file", "song.mp3", testutil.MP3Frame()})
	rec := env.serve(req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, env.store.GetFileCount(), "failed copy should be removed")
}

func TestAudioHandler_HandleUpdateStoredTags(t *testing.T) {
	env := newTestEnv(t)
	src := env.store.AddFile(storage.PrefixUpload, "track.mp3", testutil.MP3Frame())

	req := jsonRequest(http.MethodPost, "/upload/update-tags/"+src.StoredFilename, `{"title":"Fixed","album":"LP"}`)
	rec := env.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp updateTagsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "track.mp3", resp.Filename)
	assert.NotEqual(t, src.StoredFilename, resp.UpdatedFilename)
	assert.True(t, env.store.Has(src.StoredFilename), "source must survive")

	applied := env.audio.appliedTo("/mock/path/" + resp.UpdatedFilename)
	require.NotNil(t, applied)
	assert.Equal(t, "LP", applied.Album)

	rec = env.serve(jsonRequest(http.MethodPost, "/upload/update-tags/upload_1_missing.mp3", `{"title":"x"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAudioHandler_HandleUpdateCoverArt(t *testing.T) {
	tests := []struct {
		name       string
		audioName  string
		coverName  string
		cover      []byte
		wantStatus int
		wantMIME   string
	}{
		{"png cover", "song.mp3", "cover.png", []byte("png-bytes"), http.StatusOK, "image/png"},
		{"jpeg cover", "song.mp3", "cover.jpg", []byte("jpg-bytes"), http.StatusOK, "image/jpeg"},
		{"bad image extension", "song.mp3", "cover.bmp", []byte("x"), http.StatusBadRequest, ""},
		{"bad audio extension", "song.doc", "cover.png", []byte("x"), http.StatusBadRequest, ""},
		{"empty cover", "song.mp3", "cover.png", nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := multipartRequest(t, "/upload/cover-art", nil,
				formFile{"audio_file", tt.audioName, testutil.MP3Frame()},
				formFile{"cover_file", tt.coverName, tt.cover})
			rec := env.serve(req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp updateTagsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "Cover art updated successfully", resp.Message)
			// multipart.CreateFormFile declares application/octet-stream, so the extension decides
			assert.Equal(t, tt.wantMIME, env.audio.covers["/mock/path/"+resp.UpdatedFilename])
		})
	}
}

func TestAudioHandler_HandleGetCoverArtMissingFile(t *testing.T) {
	env := newTestEnv(t)
	h := NewAudioHandler(env.deps)

	req := httptest.NewRequest(http.MethodGet, "/upload/cover-art/none.mp3", nil)
	c := env.e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("filename")
	c.SetParamValues("none.mp3")

	assertAPIError(t, h.HandleGetCoverArt(c), http.StatusNotFound, "NOT_FOUND")
}

func TestParseMetadataForm(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, title, year, cover, mime string)
	}{
		{name: "empty", raw: "  ", wantErr: true},
		{name: "array", raw: "[]", wantErr: true},
		{name: "string", raw: `"title"`, wantErr: true},
		{
			name: "snake case cover keys",
			raw:  `{"title":" Padded ","cover_art":"QUJD","cover_art_mime_type":"image/png"}`,
			check: func(t *testing.T, title, year, cover, mime string) {
				assert.Equal(t, "Padded", title)
				assert.Equal(t, "QUJD", cover)
				assert.Equal(t, "image/png", mime)
			},
		},
		{
			name: "camel case cover keys and numeric year",
			raw:  `{"year":1999,"coverArt":"QUJD","coverArtMimeType":"image/jpeg"}`,
			check: func(t *testing.T, title, year, cover, mime string) {
				assert.Equal(t, "", title)
				assert.Equal(t, "1999", year)
				assert.Equal(t, "QUJD", cover)
				assert.Equal(t, "image/jpeg", mime)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := parseMetadataForm(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, meta.Title, meta.Year, meta.CoverArt, meta.CoverArtMimeType)
		})
	}
}

func TestHasExtension(t *testing.T) {
	exts := []string{".mp3", ".FLAC"}
	tests := []struct {
		name string
		want bool
	}{
		{"a.mp3", true},
		{"A.MP3", true},
		{"b.flac", true},
		{"c.wav", false},
		{"noext", false},
		{".mp3.txt", false},
	}
	for _, tt := range tests {
		if got := hasExtension(tt.name, exts); got != tt.want {
			t.Errorf("hasExtension(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSessionParam(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/upload?session=from-query", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	assert.Equal(t, "from-query", sessionParam(c))
}
