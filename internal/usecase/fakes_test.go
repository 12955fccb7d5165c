package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"yt_archiver/internal/domain"
	"yt_archiver/internal/infrastructure/ytdlp"
	"yt_archiver/internal/options"
	"yt_archiver/internal/repository/memory"
)

type downloadFunc func(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error)

// fakeExtractor serves canned listings and runs a configurable download
type fakeExtractor struct {
	mu sync.Mutex

	listing    *domain.ChannelListing
	listingErr error
	videos     map[string][]domain.VideoEntry
	info       map[string]*domain.VideoEntry
	download   downloadFunc

	requests []domain.DownloadRequest
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		videos: make(map[string][]domain.VideoEntry),
		info:   make(map[string]*domain.VideoEntry),
	}
}

func (f *fakeExtractor) EnumeratePlaylists(ctx context.Context, sourceURL string) (*domain.ChannelListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listingErr != nil {
		return nil, f.listingErr
	}
	return f.listing, nil
}

func (f *fakeExtractor) EnumeratePlaylistVideos(ctx context.Context, playlistURL string) ([]domain.VideoEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.VideoEntry(nil), f.videos[playlistURL]...), nil
}

func (f *fakeExtractor) GetVideoInfo(ctx context.Context, url string) (*domain.VideoEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.info[url]
	if !ok {
		return nil, &domain.AdapterError{Op: "get video info", Output: "ERROR: Unsupported URL"}
	}
	return info, nil
}

func (f *fakeExtractor) Download(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	download := f.download
	f.mu.Unlock()

	if download == nil {
		download = writeMedia
	}
	return download(ctx, req, onProgress)
}

func (f *fakeExtractor) setDownload(fn downloadFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.download = fn
}

func (f *fakeExtractor) downloadRequests() []domain.DownloadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DownloadRequest(nil), f.requests...)
}

// writeMedia simulates a successful yt-dlp run with an info.json sidecar
func writeMedia(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error) {
	onProgress(domain.ProgressUpdate{Percent: 50, Timestamp: time.Now()})

	path := filepath.Join(req.Options.OutputDir, "Video ["+req.VideoID+"].mp4")
	if err := os.WriteFile(path, []byte("media-"+req.VideoID), 0644); err != nil {
		return "", err
	}
	sidecar := `{"width":1920,"height":1080,"fps":30,"vcodec":"avc1","acodec":"mp4a"}`
	if err := os.WriteFile(ytdlp.InfoJSONPath(path), []byte(sidecar), 0644); err != nil {
		return "", err
	}

	onProgress(domain.ProgressUpdate{Percent: 100, Timestamp: time.Now()})
	return path, nil
}

type fixture struct {
	store     *memory.Store
	extractor *fakeExtractor
	manager   *DownloadManager
	archive   *ytdlp.Archive
	dir       string
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()

	dir := t.TempDir()
	store := memory.NewStore()
	extractor := newFakeExtractor()
	compiler := options.NewCompiler(store.Profiles, options.Defaults{OutputDir: dir})
	archive := ytdlp.NewArchive(filepath.Join(dir, options.DefaultArchiveFileName))

	manager := NewDownloadManager(store.Videos, store.Playlists, store.Channels, extractor, compiler, archive, DownloadManagerConfig{
		Concurrency:  concurrency,
		PollInterval: 10 * time.Millisecond,
	})

	return &fixture{
		store:     store,
		extractor: extractor,
		manager:   manager,
		archive:   archive,
		dir:       dir,
	}
}

func (f *fixture) addChannel(t *testing.T, channel *domain.Channel) *domain.Channel {
	t.Helper()
	if channel.URL == "" {
		channel.URL = "https://www.youtube.com/@archive"
	}
	require.NoError(t, f.store.Channels.Create(channel))
	return channel
}

func (f *fixture) addPlaylist(t *testing.T, channelID int64, externalID string, enabled bool, ids ...string) *domain.Playlist {
	t.Helper()
	playlist, _, err := f.store.Playlists.Upsert(&domain.Playlist{
		ChannelID:  channelID,
		ExternalID: externalID,
		Title:      "Playlist " + externalID,
		URL:        ytdlp.PlaylistURL(externalID),
		Enabled:    enabled,
	})
	require.NoError(t, err)

	entries := make([]domain.VideoEntry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, domain.VideoEntry{
			ID:    id,
			Title: "Title " + id,
			URL:   ytdlp.VideoURL(id),
			Index: i + 1,
		})
	}
	f.extractor.mu.Lock()
	f.extractor.videos[playlist.URL] = entries
	f.extractor.mu.Unlock()
	return playlist
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := f.manager.Status()
		return !s.Running && s.Active == 0 && s.Queued == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func (f *fixture) status(t *testing.T, id string) *domain.Video {
	t.Helper()
	video, err := f.store.Videos.GetByID(id)
	require.NoError(t, err)
	return video
}
