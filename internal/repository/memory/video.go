package memory

import (
	"sort"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

// VideoRepository is an in-memory implementation of domain.VideoRepository
type VideoRepository struct {
	s     *Store
	order map[string]int64
}

func cloneVideo(v *domain.Video) *domain.Video {
	out := *v
	out.ChannelID = copyInt64(v.ChannelID)
	out.PlaylistID = copyInt64(v.PlaylistID)
	out.DownloadedAt = copyTime(v.DownloadedAt)
	return &out
}

// Upsert creates a pending video or updates the title of an existing one
func (r *VideoRepository) Upsert(video *domain.Video) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.videos[video.ID]; ok {
		existing.Title = video.Title
		existing.UpdatedAt = now()
		return nil
	}

	stored := cloneVideo(video)
	if stored.Status == "" {
		stored.Status = domain.VideoStatusPending
	}
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt
	r.s.videos[video.ID] = stored
	r.order[video.ID] = r.s.nextSeq()

	video.Status = stored.Status
	video.CreatedAt = stored.CreatedAt
	video.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetByID returns a video by its external ID
func (r *VideoRepository) GetByID(id string) (*domain.Video, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	video, ok := r.s.videos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneVideo(video), nil
}

// GetByPlaylist returns videos of a playlist in playlist order
func (r *VideoRepository) GetByPlaylist(playlistID int64) ([]*domain.Video, error) {
	videos := r.filter(func(v *domain.Video) bool {
		return v.PlaylistID != nil && *v.PlaylistID == playlistID
	})
	sort.SliceStable(videos, func(i, j int) bool { return videos[i].PlaylistIndex < videos[j].PlaylistIndex })
	return videos, nil
}

// GetByChannel returns videos of a channel, newest first
func (r *VideoRepository) GetByChannel(channelID int64) ([]*domain.Video, error) {
	videos := r.filter(func(v *domain.Video) bool {
		return v.ChannelID != nil && *v.ChannelID == channelID
	})
	reverse(videos)
	return videos, nil
}

// GetPending returns all pending videos, oldest first
func (r *VideoRepository) GetPending() ([]*domain.Video, error) {
	return r.filter(func(v *domain.Video) bool { return v.Status == domain.VideoStatusPending }), nil
}

// ListByStatus returns recently updated videos with the given status
func (r *VideoRepository) ListByStatus(status domain.VideoStatus, limit, offset int) ([]*domain.Video, error) {
	videos := r.filter(func(v *domain.Video) bool { return v.Status == status })
	reverse(videos)
	sort.SliceStable(videos, func(i, j int) bool { return videos[i].UpdatedAt.After(videos[j].UpdatedAt) })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(videos) {
		return nil, nil
	}
	videos = videos[offset:]
	if limit > 0 && limit < len(videos) {
		videos = videos[:limit]
	}
	return videos, nil
}

// CountByStatus returns the number of videos per status
func (r *VideoRepository) CountByStatus() (map[domain.VideoStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[domain.VideoStatus]int, len(domain.AllVideoStatuses))
	for _, status := range domain.AllVideoStatuses {
		counts[status] = 0
	}
	for _, video := range r.s.videos {
		counts[video.Status]++
	}
	return counts, nil
}

// Claim moves a pending video to downloading
func (r *VideoRepository) Claim(id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	video, ok := r.s.videos[id]
	if !ok || video.Status != domain.VideoStatusPending {
		return false, nil
	}
	video.Status = domain.VideoStatusDownloading
	video.ErrorMessage = ""
	video.UpdatedAt = now()
	return true, nil
}

// MarkCompleted records a finished download
func (r *VideoRepository) MarkCompleted(id string, completion domain.Completion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	video, err := r.transition(id, domain.VideoStatusCompleted)
	if err != nil || video == nil {
		return err
	}

	downloadedAt := completion.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = now()
	}
	downloadedAt = downloadedAt.UTC()
	video.DownloadedAt = &downloadedAt
	video.FilePath = completion.FilePath
	video.FileSize = completion.FileSize
	video.ErrorMessage = ""
	video.Resolution = completion.Resolution
	video.FPS = completion.FPS
	video.VideoCodec = completion.VideoCodec
	video.AudioCodec = completion.AudioCodec
	return nil
}

// MarkFailed records a failed download
func (r *VideoRepository) MarkFailed(id string, errorMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	video, err := r.transition(id, domain.VideoStatusFailed)
	if err != nil || video == nil {
		return err
	}
	video.ErrorMessage = errorMsg
	return nil
}

// Reset moves a completed or failed video back to pending
func (r *VideoRepository) Reset(id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	video, err := r.transition(id, domain.VideoStatusPending)
	if err != nil || video == nil {
		return err
	}
	resetVideo(video)
	return nil
}

// ResetFailed moves every failed video back to pending
func (r *VideoRepository) ResetFailed() ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var ids []string
	for id, video := range r.s.videos {
		if video.Status == domain.VideoStatusFailed {
			video.Status = domain.VideoStatusPending
			video.ErrorMessage = ""
			video.UpdatedAt = now()
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return r.order[ids[i]] < r.order[ids[j]] })
	return ids, nil
}

// FailInterrupted marks videos left in downloading as failed
func (r *VideoRepository) FailInterrupted(errorMsg string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, video := range r.s.videos {
		if video.Status == domain.VideoStatusDownloading {
			video.Status = domain.VideoStatusFailed
			video.ErrorMessage = errorMsg
			video.UpdatedAt = now()
			n++
		}
	}
	return n, nil
}

// transition applies a state machine move. A nil video with a nil error means
// the video already is in the target state. Callers hold the write lock.
func (r *VideoRepository) transition(id string, to domain.VideoStatus) (*domain.Video, error) {
	video, ok := r.s.videos[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "video %s", id)
	}
	if video.Status == to {
		return nil, nil
	}
	if !video.Status.CanTransitionTo(to) {
		return nil, errors.Errorf("video %s cannot move from %s to %s", id, video.Status, to)
	}
	video.Status = to
	video.UpdatedAt = now()
	return video, nil
}

func resetVideo(video *domain.Video) {
	video.DownloadedAt = nil
	video.FilePath = ""
	video.FileSize = 0
	video.ErrorMessage = ""
}

// filter returns copies of matching videos in insertion order
func (r *VideoRepository) filter(match func(*domain.Video) bool) []*domain.Video {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var videos []*domain.Video
	for _, video := range r.s.videos {
		if match(video) {
			videos = append(videos, cloneVideo(video))
		}
	}
	sort.Slice(videos, func(i, j int) bool { return r.order[videos[i].ID] < r.order[videos[j].ID] })
	return videos
}

func reverse(videos []*domain.Video) {
	for i, j := 0, len(videos)-1; i < j; i, j = i+1, j-1 {
		videos[i], videos[j] = videos[j], videos[i]
	}
}
