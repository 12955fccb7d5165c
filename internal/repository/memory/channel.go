package memory

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

// ChannelRepository is an in-memory implementation of domain.ChannelRepository
type ChannelRepository struct {
	s *Store
}

func cloneChannel(c *domain.Channel) *domain.Channel {
	out := *c
	out.LastScrapedAt = copyTime(c.LastScrapedAt)
	out.ProfileID = copyInt64(c.ProfileID)
	return &out
}

// Create stores a new channel
func (r *ChannelRepository) Create(channel *domain.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.channels {
		if existing.URL == channel.URL {
			return errors.Wrapf(domain.ErrAlreadyExists, "channel %s", channel.URL)
		}
	}

	if channel.RescrapeIntervalDays <= 0 {
		channel.RescrapeIntervalDays = domain.DefaultRescrapeIntervalDays
	}
	if channel.SponsorBlockMode == "" {
		channel.SponsorBlockMode = domain.SponsorBlockMark
	}
	channel.ID = r.s.nextID()
	channel.CreatedAt = now()
	channel.UpdatedAt = channel.CreatedAt

	r.s.channels[channel.ID] = cloneChannel(channel)
	return nil
}

// GetByID returns a channel by ID
func (r *ChannelRepository) GetByID(id int64) (*domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	channel, ok := r.s.channels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneChannel(channel), nil
}

// GetAll returns all channels, newest first
func (r *ChannelRepository) GetAll() ([]*domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	channels := make([]*domain.Channel, 0, len(r.s.channels))
	for _, channel := range r.s.channels {
		channels = append(channels, cloneChannel(channel))
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID > channels[j].ID })
	return channels, nil
}

// Update replaces the mutable fields of a channel
func (r *ChannelRepository) Update(channel *domain.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.channels[channel.ID]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "update channel")
	}
	for id, other := range r.s.channels {
		if id != channel.ID && other.URL == channel.URL {
			return errors.Wrapf(domain.ErrAlreadyExists, "channel %s", channel.URL)
		}
	}

	updated := cloneChannel(channel)
	updated.ExternalID = existing.ExternalID
	updated.Name = existing.Name
	updated.LastScrapedAt = existing.LastScrapedAt
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now()
	channel.UpdatedAt = updated.UpdatedAt

	r.s.channels[channel.ID] = updated
	return nil
}

// UpdateIdentity stores the resolved external ID and name
func (r *ChannelRepository) UpdateIdentity(id int64, externalID, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	channel, ok := r.s.channels[id]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "update channel identity")
	}
	channel.ExternalID = externalID
	channel.Name = name
	channel.UpdatedAt = now()
	return nil
}

// TouchScraped stamps the last scrape time
func (r *ChannelRepository) TouchScraped(id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	channel, ok := r.s.channels[id]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "touch channel")
	}
	at = at.UTC()
	channel.LastScrapedAt = &at
	channel.UpdatedAt = now()
	return nil
}

// Delete removes a channel with its playlists and videos
func (r *ChannelRepository) Delete(id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.channels[id]; !ok {
		return errors.Wrap(domain.ErrNotFound, "delete channel")
	}
	delete(r.s.channels, id)

	for pid, playlist := range r.s.playlists {
		if playlist.ChannelID == id {
			delete(r.s.playlists, pid)
		}
	}
	for vid, video := range r.s.videos {
		if video.ChannelID != nil && *video.ChannelID == id {
			delete(r.s.videos, vid)
		}
	}
	return nil
}
