package domain

import (
	"context"
	"time"
)

// ChannelListing is the result of enumerating a channel's playlists
type ChannelListing struct {
	ChannelID   string
	ChannelName string
	Playlists   []PlaylistEntry
}

// PlaylistEntry describes a playlist discovered on a channel
type PlaylistEntry struct {
	ID         string
	Title      string
	URL        string
	VideoCount int
}

// VideoEntry describes a video discovered by the extractor
type VideoEntry struct {
	ID         string
	Title      string
	URL        string
	Uploader   string
	ChannelID  string
	UploadDate string
	Duration   int
	Index      int
}

// ProgressUpdate is reported zero or more times while a download runs
type ProgressUpdate struct {
	Percent   float64
	Timestamp time.Time
}

// ProgressFunc receives progress updates
type ProgressFunc func(ProgressUpdate)

// DownloadRequest is a single download invocation
type DownloadRequest struct {
	URL     string
	VideoID string

	// PlaylistItem selects one item when URL is a playlist (0 = not a playlist download)
	PlaylistItem int

	Options *Invocation
}

// Extractor is the boundary to the external media extraction tool
type Extractor interface {
	// EnumeratePlaylists lists the playlists of a channel
	EnumeratePlaylists(ctx context.Context, sourceURL string) (*ChannelListing, error)

	// EnumeratePlaylistVideos lists the videos of a playlist in playlist order
	EnumeratePlaylistVideos(ctx context.Context, playlistURL string) ([]VideoEntry, error)

	// GetVideoInfo resolves metadata of a single video
	GetVideoInfo(ctx context.Context, url string) (*VideoEntry, error)

	// Download runs the tool and returns the final file path.
	// The path is empty when nothing was written (e.g. the archive already had the ID).
	Download(ctx context.Context, req DownloadRequest, onProgress ProgressFunc) (string, error)
}
