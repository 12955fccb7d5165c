package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

// PlaylistRepository is an in-memory implementation of domain.PlaylistRepository
type PlaylistRepository struct {
	s *Store
}

func clonePlaylist(p *domain.Playlist) *domain.Playlist {
	out := *p
	out.LastScrapedAt = copyTime(p.LastScrapedAt)
	return &out
}

// Upsert inserts a playlist or refreshes an existing one, keeping its enabled flag
func (r *PlaylistRepository) Upsert(playlist *domain.Playlist) (*domain.Playlist, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.channels[playlist.ChannelID]; !ok {
		return nil, false, errors.Wrapf(domain.ErrNotFound, "channel %d", playlist.ChannelID)
	}

	for _, existing := range r.s.playlists {
		if existing.ChannelID == playlist.ChannelID && existing.ExternalID == playlist.ExternalID {
			existing.Title = playlist.Title
			existing.URL = playlist.URL
			existing.VideoCount = playlist.VideoCount
			existing.UpdatedAt = now()
			return clonePlaylist(existing), false, nil
		}
	}

	stored := clonePlaylist(playlist)
	stored.ID = r.s.nextID()
	stored.LastScrapedAt = nil
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt
	r.s.playlists[stored.ID] = stored
	return clonePlaylist(stored), true, nil
}

// GetByID returns a playlist by ID
func (r *PlaylistRepository) GetByID(id int64) (*domain.Playlist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	playlist, ok := r.s.playlists[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePlaylist(playlist), nil
}

// GetByChannel returns playlists of a channel ordered by title
func (r *PlaylistRepository) GetByChannel(channelID int64) ([]*domain.Playlist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var playlists []*domain.Playlist
	for _, playlist := range r.s.playlists {
		if playlist.ChannelID == channelID {
			playlists = append(playlists, clonePlaylist(playlist))
		}
	}
	sort.Slice(playlists, func(i, j int) bool {
		a, b := strings.ToLower(playlists[i].Title), strings.ToLower(playlists[j].Title)
		if a != b {
			return a < b
		}
		return playlists[i].ID < playlists[j].ID
	})
	return playlists, nil
}

// SetEnabled toggles a playlist
func (r *PlaylistRepository) SetEnabled(id int64, enabled bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	playlist, ok := r.s.playlists[id]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "set playlist enabled")
	}
	playlist.Enabled = enabled
	playlist.UpdatedAt = now()
	return nil
}

// TouchScraped stamps the last enumeration time
func (r *PlaylistRepository) TouchScraped(id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	playlist, ok := r.s.playlists[id]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "touch playlist")
	}
	at = at.UTC()
	playlist.LastScrapedAt = &at
	playlist.UpdatedAt = now()
	return nil
}
