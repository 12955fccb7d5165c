package domain

import "time"

// Playlist is an enumerable group of videos under a channel
type Playlist struct {
	ID         int64
	ChannelID  int64
	ExternalID string
	Title      string
	URL        string
	VideoCount int

	// Enabled controls whether downloads are queued for this playlist
	Enabled bool

	LastScrapedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PlaylistRepository defines the interface for playlist data operations
type PlaylistRepository interface {
	// Upsert inserts a playlist keyed by (channel, external ID).
	// Existing rows keep their enabled flag; title, URL and video count are refreshed.
	// It returns the stored playlist and whether it was newly created.
	Upsert(playlist *Playlist) (*Playlist, bool, error)

	// GetByID returns a playlist or ErrNotFound
	GetByID(id int64) (*Playlist, error)

	// GetByChannel returns playlists of a channel ordered by title
	GetByChannel(channelID int64) ([]*Playlist, error)

	// SetEnabled toggles a playlist
	SetEnabled(id int64, enabled bool) error

	// TouchScraped stamps the last enumeration time
	TouchScraped(id int64, at time.Time) error
}
