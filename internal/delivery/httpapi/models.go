package httpapi

import (
	"time"

	"yt_archiver/internal/domain"
)

// channelPayload is the writable part of a channel
type channelPayload struct {
	URL                    string `json:"url"`
	FlatMode               bool   `json:"flat_mode"`
	AutoAddNewPlaylists    bool   `json:"auto_add_new_playlists"`
	Enabled                bool   `json:"enabled"`
	RescrapeIntervalDays   int    `json:"rescrape_interval_days"`
	DownloadMetadata       bool   `json:"download_metadata"`
	EmbedMetadata          bool   `json:"embed_metadata"`
	DownloadThumbnail      bool   `json:"download_thumbnail"`
	EmbedThumbnail         bool   `json:"embed_thumbnail"`
	DownloadSubtitles      bool   `json:"download_subtitles"`
	EmbedSubtitles         bool   `json:"embed_subtitles"`
	AutoSubtitles          bool   `json:"auto_subtitles"`
	SubtitleLanguages      string `json:"subtitle_languages"`
	SponsorBlockEnabled    bool   `json:"sponsorblock_enabled"`
	SponsorBlockMode       string `json:"sponsorblock_mode"`
	SponsorBlockCategories string `json:"sponsorblock_categories"`
	CustomArgs             string `json:"custom_args"`
	ProfileID              *int64 `json:"profile_id"`
}

func toChannelPayload(c *domain.Channel) channelPayload {
	return channelPayload{
		URL:                    c.URL,
		FlatMode:               c.FlatMode,
		AutoAddNewPlaylists:    c.AutoAddNewPlaylists,
		Enabled:                c.Enabled,
		RescrapeIntervalDays:   c.RescrapeIntervalDays,
		DownloadMetadata:       c.DownloadMetadata,
		EmbedMetadata:          c.EmbedMetadata,
		DownloadThumbnail:      c.DownloadThumbnail,
		EmbedThumbnail:         c.EmbedThumbnail,
		DownloadSubtitles:      c.DownloadSubtitles,
		EmbedSubtitles:         c.EmbedSubtitles,
		AutoSubtitles:          c.AutoSubtitles,
		SubtitleLanguages:      c.SubtitleLanguages,
		SponsorBlockEnabled:    c.SponsorBlockEnabled,
		SponsorBlockMode:       string(c.SponsorBlockMode),
		SponsorBlockCategories: c.SponsorBlockCategories,
		CustomArgs:             c.CustomArgs,
		ProfileID:              c.ProfileID,
	}
}

func (p channelPayload) apply(c *domain.Channel) {
	c.URL = p.URL
	c.FlatMode = p.FlatMode
	c.AutoAddNewPlaylists = p.AutoAddNewPlaylists
	c.Enabled = p.Enabled
	c.RescrapeIntervalDays = p.RescrapeIntervalDays
	c.DownloadMetadata = p.DownloadMetadata
	c.EmbedMetadata = p.EmbedMetadata
	c.DownloadThumbnail = p.DownloadThumbnail
	c.EmbedThumbnail = p.EmbedThumbnail
	c.DownloadSubtitles = p.DownloadSubtitles
	c.EmbedSubtitles = p.EmbedSubtitles
	c.AutoSubtitles = p.AutoSubtitles
	c.SubtitleLanguages = p.SubtitleLanguages
	c.SponsorBlockEnabled = p.SponsorBlockEnabled
	c.SponsorBlockMode = domain.SponsorBlockMode(p.SponsorBlockMode)
	c.SponsorBlockCategories = p.SponsorBlockCategories
	c.CustomArgs = p.CustomArgs
	c.ProfileID = p.ProfileID
}

type channelResponse struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name,omitempty"`
	channelPayload
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// createChannelResponse carries the enumeration job started for a new channel
type createChannelResponse struct {
	channelResponse
	EnumerationJobID string `json:"enumeration_job_id,omitempty"`
}

func toChannelResponse(c *domain.Channel) *channelResponse {
	return &channelResponse{
		ID:             c.ID,
		ExternalID:     c.ExternalID,
		Name:           c.Name,
		channelPayload: toChannelPayload(c),
		LastScrapedAt:  c.LastScrapedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

type playlistResponse struct {
	ID            int64      `json:"id"`
	ChannelID     int64      `json:"channel_id"`
	ExternalID    string     `json:"external_id"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	VideoCount    int        `json:"video_count"`
	Enabled       bool       `json:"enabled"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toPlaylistResponse(p *domain.Playlist) *playlistResponse {
	return &playlistResponse{
		ID:            p.ID,
		ChannelID:     p.ChannelID,
		ExternalID:    p.ExternalID,
		Title:         p.Title,
		URL:           p.URL,
		VideoCount:    p.VideoCount,
		Enabled:       p.Enabled,
		LastScrapedAt: p.LastScrapedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type videoResponse struct {
	ID            string     `json:"id"`
	ChannelID     *int64     `json:"channel_id,omitempty"`
	PlaylistID    *int64     `json:"playlist_id,omitempty"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Uploader      string     `json:"uploader,omitempty"`
	UploadDate    string     `json:"upload_date,omitempty"`
	Duration      int        `json:"duration"`
	PlaylistIndex int        `json:"playlist_index,omitempty"`
	Status        string     `json:"status"`
	DownloadedAt  *time.Time `json:"downloaded_at,omitempty"`
	FilePath      string     `json:"file_path,omitempty"`
	FileSize      int64      `json:"file_size,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	FPS           float64    `json:"fps,omitempty"`
	VideoCodec    string     `json:"video_codec,omitempty"`
	AudioCodec    string     `json:"audio_codec,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toVideoResponse(v *domain.Video) *videoResponse {
	return &videoResponse{
		ID:            v.ID,
		ChannelID:     v.ChannelID,
		PlaylistID:    v.PlaylistID,
		Title:         v.Title,
		URL:           v.URL,
		Uploader:      v.Uploader,
		UploadDate:    v.UploadDate,
		Duration:      v.Duration,
		PlaylistIndex: v.PlaylistIndex,
		Status:        string(v.Status),
		DownloadedAt:  v.DownloadedAt,
		FilePath:      v.FilePath,
		FileSize:      v.FileSize,
		ErrorMessage:  v.ErrorMessage,
		Resolution:    v.Resolution,
		FPS:           v.FPS,
		VideoCodec:    v.VideoCodec,
		AudioCodec:    v.AudioCodec,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

type profilePayload struct {
	Name           string `json:"name"`
	OutputTemplate string `json:"output_template"`
	Format         string `json:"format"`
	MergeFormat    string `json:"merge_format"`
	ExtraArgs      string `json:"extra_args"`
}

func toProfilePayload(p *domain.Profile) profilePayload {
	return profilePayload{
		Name:           p.Name,
		OutputTemplate: p.OutputTemplate,
		Format:         p.Format,
		MergeFormat:    p.MergeFormat,
		ExtraArgs:      p.ExtraArgs,
	}
}

func (p profilePayload) apply(profile *domain.Profile) {
	profile.Name = p.Name
	profile.OutputTemplate = p.OutputTemplate
	profile.Format = p.Format
	profile.MergeFormat = p.MergeFormat
	profile.ExtraArgs = p.ExtraArgs
}

type profileResponse struct {
	ID int64 `json:"id"`
	profilePayload
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProfileResponse(p *domain.Profile) *profileResponse {
	return &profileResponse{
		ID:             p.ID,
		profilePayload: toProfilePayload(p),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
