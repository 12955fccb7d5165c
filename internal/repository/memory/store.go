package memory

import (
	"sync"
	"time"

	"yt_archiver/internal/domain"
)

// Store is an in-process record store. All repositories of one Store share its
// state, so deletes cascade the same way the relational schema does.
type Store struct {
	mu sync.RWMutex

	channels  map[int64]*domain.Channel
	playlists map[int64]*domain.Playlist
	videos    map[string]*domain.Video
	profiles  map[int64]*domain.Profile

	// insertion order keeps listings stable
	seq    int64
	lastID int64

	Channels  *ChannelRepository
	Playlists *PlaylistRepository
	Videos    *VideoRepository
	Profiles  *ProfileRepository
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	s := &Store{
		channels:  make(map[int64]*domain.Channel),
		playlists: make(map[int64]*domain.Playlist),
		videos:    make(map[string]*domain.Video),
		profiles:  make(map[int64]*domain.Profile),
	}
	s.Channels = &ChannelRepository{s: s}
	s.Playlists = &PlaylistRepository{s: s}
	s.Videos = &VideoRepository{s: s, order: make(map[string]int64)}
	s.Profiles = &ProfileRepository{s: s}
	return s
}

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func now() time.Time {
	return time.Now().UTC()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
