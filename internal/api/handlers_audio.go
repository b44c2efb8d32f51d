// handlers_audio.go - Upload and tag rewrite handlers
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/cover"
	"github.com/audio-tag-editor/backend/internal/debug"
	"github.com/audio-tag-editor/backend/internal/models"
	"github.com/audio-tag-editor/backend/internal/storage"
	"github.com/audio-tag-editor/backend/internal/tags"
)

// AudioHandlerImpl implements the AudioHandler interface
type AudioHandlerImpl struct {
	store         storage.Store
	audio         AudioService
	sessions      SessionManager
	audioExts     []string
	imageExts     []string
	thumbnailSize int
}

// NewAudioHandler creates a new audio handler instance
func NewAudioHandler(deps *Dependencies) AudioHandler {
	return &AudioHandlerImpl{
		store:         deps.Store,
		audio:         deps.Audio,
		sessions:      deps.Sessions,
		audioExts:     deps.audioExts(),
		imageExts:     deps.imageExts(),
		thumbnailSize: deps.ThumbnailSize,
	}
}

// HandleUpload stores one or more audio files and returns their tags
func (h *AudioHandlerImpl) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("multipart form with files is required", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		return NewValidationError("files")
	}

	for _, fh := range files {
		if !hasExtension(fh.Filename, h.audioExts) {
			return NewBadRequestError(fmt.Sprintf("Unsupported file format. Allowed formats: %s", strings.Join(h.audioExts, ", ")), nil)
		}
	}

	sessionID := sessionParam(c)
	if sessionID != "" {
		if h.sessions == nil {
			return NewServiceUnavailableError("sessions are not available")
		}
		if _, err := h.sessions.Get(sessionID); err != nil {
			return fromError(err, "session not found")
		}
	}

	uploaded := make([]uploadedFile, 0, len(files))
	for _, fh := range files {
		entry, err := h.storeAndExtract(fh)
		if err != nil {
			for _, u := range uploaded {
				h.store.Delete(u.StoredFilename)
			}
			return err
		}
		uploaded = append(uploaded, *entry)
	}

	resp := audioUploadResponse{
		Success:          true,
		Filename:         uploaded[0].Filename,
		StoredFilename:   uploaded[0].StoredFilename,
		Metadata:         uploaded[0].Metadata,
		Message:          "File uploaded and metadata extracted successfully",
		Platform:         string(models.PlatformUpload),
		AllFilesMetadata: uploaded,
	}
	if len(uploaded) > 1 {
		resp.Message = fmt.Sprintf("%d files uploaded and metadata extracted successfully", len(uploaded))
	}

	if sessionID != "" {
		entries := make([]models.FileMetadata, len(uploaded))
		for i, u := range uploaded {
			entries[i] = models.NewFileMetadata(u.Filename, u.StoredFilename, u.Metadata, models.ProvenanceUploaded)
			entries[i].Platform = string(models.PlatformUpload)
		}
		snap, err := h.sessions.AddFiles(sessionID, entries)
		if err != nil {
			return fromError(err, "failed to add files to session")
		}
		resp.Session = snap
	}

	fmt.Printf("[Upload] Stored %d file(s), first: %s\n", len(uploaded), uploaded[0].StoredFilename)
	return c.JSON(http.StatusOK, resp)
}

func (h *AudioHandlerImpl) storeAndExtract(fh *multipart.FileHeader) (*uploadedFile, error) {
	info, err := saveUpload(h.store, storage.PrefixUpload, fh)
	if err != nil {
		return nil, NewInternalError("failed to save file", err)
	}
	path, err := h.store.GetFilePath(info.StoredFilename)
	if err != nil {
		return nil, NewInternalError("failed to locate stored file", err)
	}
	meta, err := h.audio.Extract(path)
	if err != nil {
		h.store.Delete(info.StoredFilename)
		return nil, fromError(err, fmt.Sprintf("Unable to read audio file %s", fh.Filename))
	}
	return &uploadedFile{
		Filename:       fh.Filename,
		StoredFilename: info.StoredFilename,
		Metadata:       meta,
	}, nil
}

// HandleUpdateTags writes metadata into an uploaded file and keeps the result as an updated_ copy
func (h *AudioHandlerImpl) HandleUpdateTags(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file")
	}
	if !hasExtension(fh.Filename, h.audioExts) {
		return NewBadRequestError("Unsupported file format", nil)
	}
	meta, err := parseMetadataForm(c.FormValue("metadata"))
	if err != nil {
		return err
	}
	debug.Printf("API", "update-tags %s: title=%q", fh.Filename, meta.Title)

	info, err := saveUpload(h.store, storage.PrefixUpdated, fh)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	if err := h.applyTo(info, meta); err != nil {
		h.store.Delete(info.StoredFilename)
		return fromError(err, "Error updating file")
	}

	return c.JSON(http.StatusOK, updateTagsResponse{
		Success:         true,
		Message:         "Tags updated successfully",
		Filename:        fh.Filename,
		UpdatedFilename: info.StoredFilename,
	})
}

// HandleUpdateStoredTags writes metadata into a copy of a workspace file
func (h *AudioHandlerImpl) HandleUpdateStoredTags(c echo.Context) error {
	stored := c.Param("filename")
	source, err := h.store.Get(stored)
	if err != nil {
		return NewNotFoundError("file", stored)
	}

	raw := c.FormValue("metadata")
	if raw == "" && strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var body json.RawMessage
		if err := c.Bind(&body); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
		raw = string(body)
	}
	meta, err := parseMetadataForm(raw)
	if err != nil {
		return err
	}

	info, err := h.store.Copy(source.StoredFilename, storage.PrefixUpdated)
	if err != nil {
		return NewInternalError("failed to copy file", err)
	}
	if err := h.applyTo(info, meta); err != nil {
		h.store.Delete(info.StoredFilename)
		return fromError(err, "Error updating file")
	}

	return c.JSON(http.StatusOK, updateTagsResponse{
		Success:         true,
		Message:         "Tags updated successfully",
		Filename:        source.Filename,
		UpdatedFilename: info.StoredFilename,
	})
}

func (h *AudioHandlerImpl) applyTo(info *models.FileInfo, meta *models.AudioMetadata) error {
	path, err := h.store.GetFilePath(info.StoredFilename)
	if err != nil {
		return err
	}
	if err := h.audio.Apply(path, meta); err != nil {
		return err
	}
	h.store.RegisterFile(info)
	return nil
}

// HandleUpdateCoverArt replaces the cover of an uploaded audio file
func (h *AudioHandlerImpl) HandleUpdateCoverArt(c echo.Context) error {
	audioFile, err := c.FormFile("audio_file")
	if err != nil {
		return NewValidationError("audio_file")
	}
	coverFile, err := c.FormFile("cover_file")
	if err != nil {
		return NewValidationError("cover_file")
	}
	if !hasExtension(audioFile.Filename, h.audioExts) {
		return NewBadRequestError("Unsupported audio file format", nil)
	}
	if !hasExtension(coverFile.Filename, h.imageExts) {
		return NewBadRequestError("Unsupported image file format", nil)
	}

	data, err := readPart(coverFile)
	if err != nil {
		return NewBadRequestError("failed to read cover file", err)
	}
	if len(data) == 0 {
		return NewValidationError("cover_file")
	}

	info, err := saveUpload(h.store, storage.PrefixUpdated, audioFile)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	path, err := h.store.GetFilePath(info.StoredFilename)
	if err != nil {
		return NewInternalError("failed to locate stored file", err)
	}
	if err := h.audio.SetCover(path, data, imageMIME(coverFile)); err != nil {
		h.store.Delete(info.StoredFilename)
		return fromError(err, "Error updating cover art")
	}
	h.store.RegisterFile(info)

	return c.JSON(http.StatusOK, updateTagsResponse{
		Success:         true,
		Message:         "Cover art updated successfully",
		Filename:        audioFile.Filename,
		UpdatedFilename: info.StoredFilename,
	})
}

// HandleGetCoverArt returns the embedded cover of a workspace file, optionally as a thumbnail
func (h *AudioHandlerImpl) HandleGetCoverArt(c echo.Context) error {
	stored := c.Param("filename")
	path, err := h.store.GetFilePath(stored)
	if err != nil {
		return NewNotFoundError("file", stored)
	}

	data, mime, err := tags.ExtractCover(path)
	if err != nil {
		return NewUnprocessableError("Unable to read audio file", err)
	}
	if len(data) == 0 {
		return NewNotFoundError("cover art", stored)
	}

	sizeParam := c.QueryParam("size")
	if sizeParam == "" && c.QueryParam("thumbnail") == "true" {
		sizeParam = strconv.Itoa(h.thumbnailSize)
	}
	if sizeParam != "" {
		size, err := strconv.Atoi(sizeParam)
		if err != nil || size <= 0 {
			return NewValidationError("size")
		}
		thumb, err := cover.Thumbnail(data, size)
		if err != nil {
			return NewUnprocessableError("Unable to decode cover art", err)
		}
		data, mime = thumb, tags.MIMEJPEG
	}

	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, mime, data)
}

// Request/Response types

type uploadedFile struct {
	Filename       string                `json:"filename"`
	StoredFilename string                `json:"stored_filename"`
	Metadata       *models.AudioMetadata `json:"metadata"`
}

type audioUploadResponse struct {
	Success          bool                  `json:"success"`
	Filename         string                `json:"filename"`
	StoredFilename   string                `json:"stored_filename,omitempty"`
	Metadata         *models.AudioMetadata `json:"metadata"`
	Message          string                `json:"message"`
	Platform         string                `json:"platform,omitempty"`
	OriginalURL      string                `json:"original_url,omitempty"`
	AllFilesMetadata []uploadedFile        `json:"all_files_metadata,omitempty"`
	Session          *models.EditSession   `json:"session,omitempty"`
}

type updateTagsResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Filename        string `json:"filename"`
	UpdatedFilename string `json:"updated_filename"`
}

// Helper functions

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// sessionParam returns the optional session id of a request.
func sessionParam(c echo.Context) string {
	if id := c.FormValue("session"); id != "" {
		return id
	}
	return c.QueryParam("session")
}

func saveUpload(store storage.Store, prefix string, fh *multipart.FileHeader) (*models.FileInfo, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return store.Save(prefix, fh.Filename, src)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// imageMIME takes the part's declared type, falling back to the extension.
func imageMIME(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		return ct
	}
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".png":
		return tags.MIMEPNG
	case ".gif":
		return tags.MIMEGIF
	case ".webp":
		return tags.MIMEWebP
	}
	return tags.MIMEJPEG
}

// parseMetadataForm decodes the metadata JSON object sent alongside a file.
// Numbers are accepted for year and track.
func parseMetadataForm(raw string) (*models.AudioMetadata, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, NewValidationError("metadata")
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, NewBadRequestError(fmt.Sprintf("Invalid metadata JSON: %v", err), nil)
	}
	fields, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, NewBadRequestError("Metadata must be a JSON object", nil)
	}

	str := func(keys ...string) string {
		for _, k := range keys {
			switch v := fields[k].(type) {
			case string:
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		return ""
	}

	return &models.AudioMetadata{
		Title:            str("title"),
		Artist:           str("artist"),
		Album:            str("album"),
		Genre:            str("genre"),
		Year:             str("year"),
		Track:            str("track"),
		CoverArt:         str("cover_art", "coverArt"),
		CoverArtMimeType: str("cover_art_mime_type", "coverArtMimeType"),
	}, nil
}
