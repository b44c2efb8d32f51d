package models

import "strings"

// AudioMetadata is the editable tag subset exchanged with the frontend.
// Cover art travels base64 encoded.
type AudioMetadata struct {
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	Album            string `json:"album"`
	Genre            string `json:"genre"`
	Year             string `json:"year"`
	Track            string `json:"track"`
	Duration         int    `json:"duration"` // seconds
	CoverArt         string `json:"cover_art,omitempty"`
	CoverArtMimeType string `json:"cover_art_mime_type,omitempty"`
}

// HasCover reports whether both cover payload and MIME type are present.
func (m *AudioMetadata) HasCover() bool {
	return m.CoverArt != "" && m.CoverArtMimeType != ""
}

// Provenance records how a file entered the workspace.
type Provenance string

const (
	ProvenanceUploaded   Provenance = "uploaded"
	ProvenanceDownloaded Provenance = "downloaded"
)

// FileMetadata is one entry of an editing session.
type FileMetadata struct {
	Filename         string     `json:"filename"`
	StoredFilename   string     `json:"storedFilename"`
	Title            string     `json:"title"`
	Artist           string     `json:"artist"`
	Album            string     `json:"album"`
	Genre            string     `json:"genre"`
	Year             string     `json:"year"`
	Track            string     `json:"track"`
	Duration         int        `json:"duration"`
	CoverArt         string     `json:"coverArt,omitempty"`
	CoverArtMimeType string     `json:"coverArtMimeType,omitempty"`
	UpdatedFilename  string     `json:"updatedFilename,omitempty"`
	Provenance       Provenance `json:"provenance"`
	Platform         string     `json:"platform,omitempty"`
	OriginalURL      string     `json:"originalUrl,omitempty"`
}

// IsDownloaded reports whether the entry came from a URL fetch.
func (f *FileMetadata) IsDownloaded() bool {
	return f.Provenance == ProvenanceDownloaded
}

// Audio returns the tag subset of the entry.
func (f *FileMetadata) Audio() *AudioMetadata {
	return &AudioMetadata{
		Title:            f.Title,
		Artist:           f.Artist,
		Album:            f.Album,
		Genre:            f.Genre,
		Year:             f.Year,
		Track:            f.Track,
		Duration:         f.Duration,
		CoverArt:         f.CoverArt,
		CoverArtMimeType: f.CoverArtMimeType,
	}
}

// NewFileMetadata builds a session entry from extracted tags.
func NewFileMetadata(filename, stored string, meta *AudioMetadata, prov Provenance) FileMetadata {
	fm := FileMetadata{
		Filename:       filename,
		StoredFilename: stored,
		Provenance:     prov,
	}
	if meta != nil {
		fm.Title = meta.Title
		fm.Artist = meta.Artist
		fm.Album = meta.Album
		fm.Genre = meta.Genre
		fm.Year = meta.Year
		fm.Track = meta.Track
		fm.Duration = meta.Duration
		fm.CoverArt = meta.CoverArt
		fm.CoverArtMimeType = meta.CoverArtMimeType
	}
	return fm
}

// MetadataPatch is a partial edit. Nil fields are left untouched.
type MetadataPatch struct {
	Title            *string `json:"title,omitempty"`
	Artist           *string `json:"artist,omitempty"`
	Album            *string `json:"album,omitempty"`
	Genre            *string `json:"genre,omitempty"`
	Year             *string `json:"year,omitempty"`
	Track            *string `json:"track,omitempty"`
	CoverArt         *string `json:"coverArt,omitempty"`
	CoverArtMimeType *string `json:"coverArtMimeType,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *MetadataPatch) IsEmpty() bool {
	return p.Title == nil && p.Artist == nil && p.Album == nil && p.Genre == nil &&
		p.Year == nil && p.Track == nil && p.CoverArt == nil && p.CoverArtMimeType == nil
}

// BlankField names the first text field the patch sets to blank, or "".
// Tags are written field by field and a blank value keeps what the file has,
// so clearing a text field cannot be saved.
func (p *MetadataPatch) BlankField() string {
	fields := []struct {
		name string
		v    *string
	}{
		{"title", p.Title},
		{"artist", p.Artist},
		{"album", p.Album},
		{"genre", p.Genre},
		{"year", p.Year},
		{"track", p.Track},
	}
	for _, f := range fields {
		if f.v != nil && strings.TrimSpace(*f.v) == "" {
			return f.name
		}
	}
	return ""
}

// Shared drops the per-file fields (title, track) for batch edits.
func (p MetadataPatch) Shared() MetadataPatch {
	p.Title = nil
	p.Track = nil
	return p
}

// Fields lists the names of the fields the patch sets.
func (p *MetadataPatch) Fields() []string {
	var fields []string
	add := func(name string, v *string) {
		if v != nil {
			fields = append(fields, name)
		}
	}
	add("title", p.Title)
	add("artist", p.Artist)
	add("album", p.Album)
	add("genre", p.Genre)
	add("year", p.Year)
	add("track", p.Track)
	add("coverArt", p.CoverArt)
	add("coverArtMimeType", p.CoverArtMimeType)
	return fields
}

// Apply writes the patch into the entry.
func (p *MetadataPatch) Apply(f *FileMetadata) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&f.Title, p.Title)
	set(&f.Artist, p.Artist)
	set(&f.Album, p.Album)
	set(&f.Genre, p.Genre)
	set(&f.Year, p.Year)
	set(&f.Track, p.Track)
	if p.CoverArt != nil {
		f.CoverArt = *p.CoverArt
		if *p.CoverArt == "" {
			f.CoverArtMimeType = ""
		}
	}
	if p.CoverArtMimeType != nil && f.CoverArt != "" {
		f.CoverArtMimeType = *p.CoverArtMimeType
	}
}
