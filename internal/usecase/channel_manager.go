package usecase

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"yt_archiver/internal/domain"
	"yt_archiver/internal/options"
)

// ChannelManager handles channel, playlist and profile management and background enumeration
type ChannelManager struct {
	channels  domain.ChannelRepository
	playlists domain.PlaylistRepository
	videos    domain.VideoRepository
	profiles  domain.ProfileRepository
	extractor domain.Extractor

	enumerateTimeout time.Duration
	baseCtx          context.Context
	now              func() time.Time

	mu   sync.Mutex
	jobs map[string]*job
}

// NewChannelManager creates a new channel manager
func NewChannelManager(
	channels domain.ChannelRepository,
	playlists domain.PlaylistRepository,
	videos domain.VideoRepository,
	profiles domain.ProfileRepository,
	extractor domain.Extractor,
	enumerateTimeout time.Duration,
) *ChannelManager {
	return &ChannelManager{
		channels:         channels,
		playlists:        playlists,
		videos:           videos,
		profiles:         profiles,
		extractor:        extractor,
		enumerateTimeout: enumerateTimeout,
		baseCtx:          context.Background(),
		now:              time.Now,
		jobs:             make(map[string]*job),
	}
}

// SetBaseContext configures the root context of background jobs.
// Cancelling it cancels every running job.
func (m *ChannelManager) SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.baseCtx = ctx
}

// CreateChannel validates and stores a new channel
func (m *ChannelManager) CreateChannel(channel *domain.Channel) (*domain.Channel, error) {
	channel.URL = strings.TrimSpace(channel.URL)
	if err := m.validateChannel(channel); err != nil {
		return nil, err
	}
	if channel.RescrapeIntervalDays <= 0 {
		channel.RescrapeIntervalDays = domain.DefaultRescrapeIntervalDays
	}
	if channel.SponsorBlockMode == "" {
		channel.SponsorBlockMode = domain.SponsorBlockMark
	}

	if err := m.channels.Create(channel); err != nil {
		return nil, errors.Wrapf(err, "channel %s", channel.URL)
	}

	log.WithFields(log.Fields{
		"channel_id": channel.ID,
		"url":        channel.URL,
	}).Info("channel added")
	return m.channels.GetByID(channel.ID)
}

// GetChannel returns a channel by ID
func (m *ChannelManager) GetChannel(id int64) (*domain.Channel, error) {
	channel, err := m.channels.GetByID(id)
	if err != nil {
		return nil, errors.Wrapf(err, "channel %d", id)
	}
	return channel, nil
}

// ListChannels returns all channels
func (m *ChannelManager) ListChannels() ([]*domain.Channel, error) {
	return m.channels.GetAll()
}

// UpdateChannel validates and stores every mutable field of a channel
func (m *ChannelManager) UpdateChannel(channel *domain.Channel) (*domain.Channel, error) {
	if _, err := m.GetChannel(channel.ID); err != nil {
		return nil, err
	}
	channel.URL = strings.TrimSpace(channel.URL)
	if err := m.validateChannel(channel); err != nil {
		return nil, err
	}
	if channel.RescrapeIntervalDays <= 0 {
		channel.RescrapeIntervalDays = domain.DefaultRescrapeIntervalDays
	}

	if err := m.channels.Update(channel); err != nil {
		return nil, errors.Wrapf(err, "channel %d", channel.ID)
	}
	return m.channels.GetByID(channel.ID)
}

// DeleteChannel removes a channel with its playlists and videos
func (m *ChannelManager) DeleteChannel(id int64) error {
	if err := m.channels.Delete(id); err != nil {
		return errors.Wrapf(err, "channel %d", id)
	}
	log.WithField("channel_id", id).Info("channel deleted")
	return nil
}

func (m *ChannelManager) validateChannel(channel *domain.Channel) error {
	if channel.URL == "" {
		return errors.Wrap(domain.ErrInvalidInput, "channel url is required")
	}
	u, err := url.Parse(channel.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Wrapf(domain.ErrInvalidInput, "invalid channel url %q", channel.URL)
	}

	switch channel.SponsorBlockMode {
	case "", domain.SponsorBlockMark, domain.SponsorBlockRemove:
	default:
		return errors.Wrapf(domain.ErrInvalidInput, "invalid sponsorblock mode %q", channel.SponsorBlockMode)
	}
	if invalid := options.ValidateSponsorBlockCategories(channel.SponsorBlockCategories); len(invalid) > 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "invalid sponsorblock categories: %s", strings.Join(invalid, ", "))
	}

	if channel.ProfileID != nil {
		if _, err := m.profiles.GetByID(*channel.ProfileID); err != nil {
			return errors.Wrapf(err, "profile %d", *channel.ProfileID)
		}
	}
	return nil
}

// RefreshPlaylists enumerates a channel's playlists and stores them.
// New playlists are enabled when the channel auto-adds them; existing ones keep their flag.
func (m *ChannelManager) RefreshPlaylists(ctx context.Context, channelID int64) (*EnumerationResult, error) {
	channel, err := m.GetChannel(channelID)
	if err != nil {
		return nil, err
	}

	entry := log.WithField("channel_id", channelID)
	entry.WithField("url", channel.URL).Info("enumerating playlists")

	listing, err := m.extractor.EnumeratePlaylists(ctx, channel.URL)
	if err != nil {
		return nil, err
	}

	if listing.ChannelID != "" || listing.ChannelName != "" {
		if err := m.channels.UpdateIdentity(channelID, listing.ChannelID, listing.ChannelName); err != nil {
			return nil, errors.Wrap(err, "failed to store channel identity")
		}
	}

	result := &EnumerationResult{
		ChannelID:   channelID,
		ExternalID:  listing.ChannelID,
		ChannelName: listing.ChannelName,
	}
	for _, p := range listing.Playlists {
		_, created, err := m.playlists.Upsert(&domain.Playlist{
			ChannelID:  channelID,
			ExternalID: p.ID,
			Title:      p.Title,
			URL:        p.URL,
			VideoCount: p.VideoCount,
			Enabled:    channel.AutoAddNewPlaylists,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to store playlist %s", p.ID)
		}
		result.Playlists++
		if created {
			result.NewPlaylists++
		}
	}

	if err := m.channels.TouchScraped(channelID, m.now()); err != nil {
		return nil, errors.Wrap(err, "failed to stamp channel scrape time")
	}

	entry.WithFields(log.Fields{
		"playlists": result.Playlists,
		"new":       result.NewPlaylists,
	}).Info("playlists enumerated")
	return result, nil
}

// StartEnumeration runs RefreshPlaylists in the background and returns a handle to poll
func (m *ChannelManager) StartEnumeration(channelID int64) (Job, error) {
	if _, err := m.GetChannel(channelID); err != nil {
		return Job{}, err
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.enumerateTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.baseCtx, m.enumerateTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.baseCtx)
	}

	j := &job{
		Job: Job{
			ID:        uuid.NewString(),
			ChannelID: channelID,
			State:     JobRunning,
			StartedAt: m.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.pruneJobs()
	m.jobs[j.ID] = j
	snapshot := j.Job
	m.mu.Unlock()

	entry := log.WithFields(log.Fields{
		"job_id":     j.ID,
		"channel_id": channelID,
	})
	entry.Info("enumeration job started")

	go func() {
		defer cancel()
		result, err := m.RefreshPlaylists(ctx, channelID)

		m.mu.Lock()
		finished := m.now()
		j.FinishedAt = &finished
		switch {
		case err == nil:
			j.State = JobSucceeded
			j.Result = result
		case ctx.Err() == context.Canceled:
			j.State = JobCancelled
			j.Error = err.Error()
		default:
			j.State = JobFailed
			j.Error = err.Error()
		}
		state := j.State
		m.mu.Unlock()
		close(j.done)

		if err != nil {
			entry.WithError(err).WithField("state", state).Warn("enumeration job ended")
			return
		}
		entry.Info("enumeration job succeeded")
	}()

	return snapshot, nil
}

// Job returns a snapshot of an enumeration job
func (m *ChannelManager) Job(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return Job{}, errors.Wrapf(domain.ErrNotFound, "job %s", id)
	}
	return j.Job, nil
}

// CancelJob cancels a running enumeration job
func (m *ChannelManager) CancelJob(id string) (Job, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Job{}, errors.Wrapf(domain.ErrNotFound, "job %s", id)
	}

	j.cancel()
	<-j.done
	return m.Job(id)
}

// WaitJob blocks until the job finishes or ctx is done
func (m *ChannelManager) WaitJob(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Job{}, errors.Wrapf(domain.ErrNotFound, "job %s", id)
	}

	select {
	case <-j.done:
		return m.Job(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// pruneJobs drops finished jobs past retention. Callers hold m.mu.
func (m *ChannelManager) pruneJobs() {
	cutoff := m.now().Add(-jobRetention)
	for id, j := range m.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

// ListPlaylists returns the playlists of a channel
func (m *ChannelManager) ListPlaylists(channelID int64) ([]*domain.Playlist, error) {
	if _, err := m.GetChannel(channelID); err != nil {
		return nil, err
	}
	return m.playlists.GetByChannel(channelID)
}

// SetPlaylistEnabled toggles whether a playlist is downloaded
func (m *ChannelManager) SetPlaylistEnabled(id int64, enabled bool) (*domain.Playlist, error) {
	if err := m.playlists.SetEnabled(id, enabled); err != nil {
		return nil, errors.Wrapf(err, "playlist %d", id)
	}
	return m.playlists.GetByID(id)
}

// CreateProfile stores a new profile
func (m *ChannelManager) CreateProfile(profile *domain.Profile) (*domain.Profile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "profile name is required")
	}
	if err := m.profiles.Create(profile); err != nil {
		return nil, errors.Wrapf(err, "profile %q", profile.Name)
	}
	return m.profiles.GetByID(profile.ID)
}

// GetProfile returns a profile by ID
func (m *ChannelManager) GetProfile(id int64) (*domain.Profile, error) {
	profile, err := m.profiles.GetByID(id)
	if err != nil {
		return nil, errors.Wrapf(err, "profile %d", id)
	}
	return profile, nil
}

// ListProfiles returns all profiles
func (m *ChannelManager) ListProfiles() ([]*domain.Profile, error) {
	return m.profiles.GetAll()
}

// UpdateProfile stores every mutable field of a profile
func (m *ChannelManager) UpdateProfile(profile *domain.Profile) (*domain.Profile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "profile name is required")
	}
	if err := m.profiles.Update(profile); err != nil {
		return nil, errors.Wrapf(err, "profile %d", profile.ID)
	}
	return m.profiles.GetByID(profile.ID)
}

// DeleteProfile removes a profile; channels using it fall back to no profile
func (m *ChannelManager) DeleteProfile(id int64) error {
	if err := m.profiles.Delete(id); err != nil {
		return errors.Wrapf(err, "profile %d", id)
	}
	return nil
}

// GetVideo returns a video by its external ID
func (m *ChannelManager) GetVideo(id string) (*domain.Video, error) {
	video, err := m.videos.GetByID(id)
	if err != nil {
		return nil, errors.Wrapf(err, "video %s", id)
	}
	return video, nil
}

// ListChannelVideos returns the videos of a channel
func (m *ChannelManager) ListChannelVideos(channelID int64) ([]*domain.Video, error) {
	if _, err := m.GetChannel(channelID); err != nil {
		return nil, err
	}
	return m.videos.GetByChannel(channelID)
}

// ListPlaylistVideos returns the videos of a playlist in playlist order
func (m *ChannelManager) ListPlaylistVideos(playlistID int64) ([]*domain.Video, error) {
	if _, err := m.playlists.GetByID(playlistID); err != nil {
		return nil, errors.Wrapf(err, "playlist %d", playlistID)
	}
	return m.videos.GetByPlaylist(playlistID)
}

// ListVideosByStatus returns recently updated videos with a status
func (m *ChannelManager) ListVideosByStatus(status domain.VideoStatus, limit, offset int) ([]*domain.Video, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "unknown status %q", status)
	}
	return m.videos.ListByStatus(status, limit, offset)
}

// CountVideos returns the number of videos per status
func (m *ChannelManager) CountVideos() (map[domain.VideoStatus]int, error) {
	return m.videos.CountByStatus()
}
