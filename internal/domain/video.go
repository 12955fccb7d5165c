package domain

import "time"

// VideoStatus represents the download status of a video
type VideoStatus string

const (
	// VideoStatusPending indicates the video was discovered and waits for a worker
	VideoStatusPending VideoStatus = "pending"

	// VideoStatusDownloading indicates a worker claimed the video
	VideoStatusDownloading VideoStatus = "downloading"

	// VideoStatusCompleted indicates the video file is on disk
	VideoStatusCompleted VideoStatus = "completed"

	// VideoStatusFailed indicates the download failed and can be retried
	VideoStatusFailed VideoStatus = "failed"
)

// AllVideoStatuses lists every status in lifecycle order.
var AllVideoStatuses = []VideoStatus{
	VideoStatusPending,
	VideoStatusDownloading,
	VideoStatusCompleted,
	VideoStatusFailed,
}

// Valid reports whether s is a known status.
func (s VideoStatus) Valid() bool {
	for _, known := range AllVideoStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether a worker or an explicit reset may move a video from s to next.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	switch s {
	case VideoStatusPending:
		return next == VideoStatusDownloading
	case VideoStatusDownloading:
		return next == VideoStatusCompleted || next == VideoStatusFailed
	case VideoStatusCompleted, VideoStatusFailed:
		return next == VideoStatusPending
	}
	return false
}

// Video represents a single downloadable item tracked by the store
type Video struct {
	// ID is the external (YouTube) video ID, unique across the store
	ID string

	// ChannelID is the owning channel, nil for ad-hoc single video downloads
	ChannelID *int64

	// PlaylistID is the owning playlist, nil for flat or single downloads
	PlaylistID *int64

	Title      string
	URL        string
	Uploader   string
	UploadDate string

	// Duration in seconds
	Duration int

	// PlaylistIndex is the 1-based position within the playlist (0 when unknown)
	PlaylistIndex int

	Status       VideoStatus
	DownloadedAt *time.Time
	FilePath     string
	FileSize     int64
	ErrorMessage string

	// Technical metadata backfilled from the info.json sidecar
	Resolution string
	FPS        float64
	VideoCodec string
	AudioCodec string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completion holds the fields written when a download finishes successfully
type Completion struct {
	FilePath     string
	FileSize     int64
	DownloadedAt time.Time
	Resolution   string
	FPS          float64
	VideoCodec   string
	AudioCodec   string
}

// VideoRepository defines the interface for video data operations.
// Every mutation must be visible to the next read.
type VideoRepository interface {
	// Upsert inserts a pending video or, when the ID exists, updates its title only
	Upsert(video *Video) error

	// GetByID returns a video by its external ID or ErrNotFound
	GetByID(id string) (*Video, error)

	// GetByPlaylist returns videos of a playlist ordered by playlist index
	GetByPlaylist(playlistID int64) ([]*Video, error)

	// GetByChannel returns videos of a channel, newest first
	GetByChannel(channelID int64) ([]*Video, error)

	// GetPending returns all pending videos, oldest first
	GetPending() ([]*Video, error)

	// ListByStatus returns recently updated videos with the given status
	ListByStatus(status VideoStatus, limit, offset int) ([]*Video, error)

	// CountByStatus returns the number of videos per status
	CountByStatus() (map[VideoStatus]int, error)

	// Claim atomically moves a pending video to downloading.
	// It returns false when the video is not pending anymore.
	Claim(id string) (bool, error)

	// MarkCompleted moves a downloading video to completed
	MarkCompleted(id string, completion Completion) error

	// MarkFailed moves a downloading video to failed
	MarkFailed(id string, errorMsg string) error

	// Reset moves a completed or failed video back to pending
	Reset(id string) error

	// ResetFailed moves every failed video back to pending and returns their IDs
	ResetFailed() ([]string, error)

	// FailInterrupted marks videos stuck in downloading as failed and returns how many were changed
	FailInterrupted(errorMsg string) (int, error)
}
