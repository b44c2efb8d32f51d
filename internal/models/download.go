package models

// Platform identifies where a workspace file came from.
type Platform string

const (
	PlatformUpload     Platform = "upload"
	PlatformYouTube    Platform = "youtube"
	PlatformSoundCloud Platform = "soundcloud"
)

// DownloadInfo is what the downloader learned about a remote track.
type DownloadInfo struct {
	Platform    Platform `json:"platform"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist,omitempty"`
	Uploader    string   `json:"uploader,omitempty"`
	Album       string   `json:"album,omitempty"`
	Genre       string   `json:"genre,omitempty"`
	Year        string   `json:"year,omitempty"`
	Duration    int      `json:"duration"` // seconds
	Thumbnail   string   `json:"thumbnail,omitempty"`
	FilePath    string   `json:"-"`
	Filename    string   `json:"filename"`
	Method      string   `json:"method"` // yt-dlp or native
	FileSize    int64    `json:"file_size"`
	ContentType string   `json:"-"`
}

// PlaylistEntry is one item of a remote playlist.
type PlaylistEntry struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}
