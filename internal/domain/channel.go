package domain

import "time"

// SponsorBlockMode selects how SponsorBlock segments are handled
type SponsorBlockMode string

const (
	SponsorBlockMark   SponsorBlockMode = "mark"
	SponsorBlockRemove SponsorBlockMode = "remove"
)

// SponsorBlockCategories lists the categories yt-dlp accepts.
var SponsorBlockCategories = []string{
	"sponsor",
	"intro",
	"outro",
	"selfpromo",
	"interaction",
	"preview",
	"music_offtopic",
	"filler",
	"poi_highlight",
	"chapter",
	"all",
}

// DefaultRescrapeIntervalDays is used when a channel does not set its own cadence
const DefaultRescrapeIntervalDays = 7

// Channel is a configured content source with its own download policy
type Channel struct {
	// ID is the local identifier
	ID int64

	// URL is the source URL, unique across channels
	URL string

	// ExternalID and Name are resolved during enumeration
	ExternalID string
	Name       string

	// FlatMode collapses playlist structure into a single folder
	FlatMode bool

	// AutoAddNewPlaylists enables newly discovered playlists
	AutoAddNewPlaylists bool

	// Enabled controls whether the scheduler processes this channel
	Enabled bool

	RescrapeIntervalDays int
	LastScrapedAt        *time.Time

	// Download toggles
	DownloadMetadata  bool
	EmbedMetadata     bool
	DownloadThumbnail bool
	EmbedThumbnail    bool
	DownloadSubtitles bool
	EmbedSubtitles    bool
	AutoSubtitles     bool

	// SubtitleLanguages is a comma separated list, "en" when empty
	SubtitleLanguages string

	SponsorBlockEnabled    bool
	SponsorBlockMode       SponsorBlockMode
	SponsorBlockCategories string

	// CustomArgs is a free-form yt-dlp argument string
	CustomArgs string

	// ProfileID references an optional named Profile
	ProfileID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDue reports whether the channel should be re-scraped at now.
func (c *Channel) IsDue(now time.Time) bool {
	if c.LastScrapedAt == nil {
		return true
	}
	interval := c.RescrapeIntervalDays
	if interval <= 0 {
		interval = DefaultRescrapeIntervalDays
	}
	return now.Sub(*c.LastScrapedAt) >= time.Duration(interval)*24*time.Hour
}

// ChannelRepository defines the interface for channel data operations
type ChannelRepository interface {
	// Create inserts a channel, ErrAlreadyExists when the URL is taken
	Create(channel *Channel) error

	// GetByID returns a channel or ErrNotFound
	GetByID(id int64) (*Channel, error)

	// GetAll returns all channels, newest first
	GetAll() ([]*Channel, error)

	// Update persists every mutable field of the channel
	Update(channel *Channel) error

	// UpdateIdentity stores the resolved external ID and name
	UpdateIdentity(id int64, externalID, name string) error

	// TouchScraped stamps the last scrape time
	TouchScraped(id int64, at time.Time) error

	// Delete removes a channel and its playlists and videos
	Delete(id int64) error
}
