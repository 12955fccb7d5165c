package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt_archiver/config"
	"yt_archiver/internal/delivery/cron"
	"yt_archiver/internal/domain"
	"yt_archiver/internal/options"
	"yt_archiver/internal/repository/memory"
	"yt_archiver/internal/usecase"
)

type stubExtractor struct {
	listing *domain.ChannelListing
	videos  map[string][]domain.VideoEntry
	info    map[string]*domain.VideoEntry
}

func (s *stubExtractor) EnumeratePlaylists(ctx context.Context, sourceURL string) (*domain.ChannelListing, error) {
	if s.listing == nil {
		return &domain.ChannelListing{}, nil
	}
	return s.listing, nil
}

func (s *stubExtractor) EnumeratePlaylistVideos(ctx context.Context, playlistURL string) ([]domain.VideoEntry, error) {
	return s.videos[playlistURL], nil
}

func (s *stubExtractor) GetVideoInfo(ctx context.Context, url string) (*domain.VideoEntry, error) {
	info, ok := s.info[url]
	if !ok {
		return nil, &domain.AdapterError{Op: "get video info", Output: "ERROR: Unsupported URL: " + url}
	}
	return info, nil
}

func (s *stubExtractor) Download(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error) {
	path := filepath.Join(req.Options.OutputDir, req.VideoID+".mp4")
	return path, os.WriteFile(path, []byte(req.VideoID), 0644)
}

type fakeScheduler struct {
	mu        sync.Mutex
	running   bool
	triggered []int64
}

func (f *fakeScheduler) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeScheduler) Status() cron.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cron.Status{Running: f.running, IntervalDays: 7}
}

func (f *fakeScheduler) TriggerChannel(ctx context.Context, channelID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channelID == 404 {
		return 0, domain.ErrNotFound
	}
	f.triggered = append(f.triggered, channelID)
	return 3, nil
}

type testServer struct {
	store     *memory.Store
	extractor *stubExtractor
	channels  *usecase.ChannelManager
	scheduler *fakeScheduler
	handler   http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	store := memory.NewStore()
	extractor := &stubExtractor{
		videos: make(map[string][]domain.VideoEntry),
		info:   make(map[string]*domain.VideoEntry),
	}
	compiler := options.NewCompiler(store.Profiles, options.Defaults{OutputDir: dir})
	downloads := usecase.NewDownloadManager(store.Videos, store.Playlists, store.Channels, extractor, compiler, nil, usecase.DownloadManagerConfig{
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = downloads.Shutdown(time.Second) })

	channels := usecase.NewChannelManager(store.Channels, store.Playlists, store.Videos, store.Profiles, extractor, time.Minute)
	scheduler := &fakeScheduler{}
	server := NewServer(&config.Config{ServerPort: "0"}, channels, downloads, scheduler)

	return &testServer{
		store:     store,
		extractor: extractor,
		channels:  channels,
		scheduler: scheduler,
		handler:   server.Handler(),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChannelLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/channels", map[string]any{"url": "https://www.youtube.com/@example"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[createChannelResponse](t, rec)
	assert.NotZero(t, created.ID)
	assert.True(t, created.Enabled)
	assert.False(t, created.AutoAddNewPlaylists)
	require.NotEmpty(t, created.EnumerationJobID)
	waitJob(t, ts, created.EnumerationJobID)
	assert.Equal(t, domain.DefaultRescrapeIntervalDays, created.RescrapeIntervalDays)
	assert.Equal(t, "mark", created.SponsorBlockMode)

	rec = ts.do(t, http.MethodPost, "/api/channels", map[string]any{"url": "https://www.youtube.com/@example"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/channels", map[string]any{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/channels/" + itoa(created.ID)
	rec = ts.do(t, http.MethodPut, path, map[string]any{"flat_mode": true, "custom_args": "--limit-rate 1M"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[channelResponse](t, rec)
	assert.True(t, updated.FlatMode)
	assert.Equal(t, "--limit-rate 1M", updated.CustomArgs)
	assert.Equal(t, created.URL, updated.URL)
	assert.True(t, updated.Enabled)

	rec = ts.do(t, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]channelResponse](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/channels/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func waitJob(t *testing.T, ts *testServer, id string) usecase.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := ts.channels.WaitJob(ctx, id)
	require.NoError(t, err)
	return job
}

func TestCreateChannelEnumeratesPlaylists(t *testing.T) {
	tests := []struct {
		url     string
		autoAdd *bool
		enabled bool
	}{
		{url: "https://www.youtube.com/@manual", enabled: false},
		{url: "https://www.youtube.com/@auto", autoAdd: boolPtr(true), enabled: true},
	}
	for _, tt := range tests {
		ts := newTestServer(t)
		ts.extractor.listing = &domain.ChannelListing{
			ChannelID:   "UC123",
			ChannelName: "Example",
			Playlists: []domain.PlaylistEntry{
				{ID: "PL1", Title: "First", URL: "https://www.youtube.com/playlist?list=PL1", VideoCount: 2},
			},
		}

		body := map[string]any{"url": tt.url}
		if tt.autoAdd != nil {
			body["auto_add_new_playlists"] = *tt.autoAdd
		}
		rec := ts.do(t, http.MethodPost, "/api/channels", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decodeBody[createChannelResponse](t, rec)
		require.NotEmpty(t, created.EnumerationJobID)

		job := waitJob(t, ts, created.EnumerationJobID)
		assert.Equal(t, usecase.JobSucceeded, job.State, tt.url)

		rec = ts.do(t, http.MethodGet, "/api/channels/"+itoa(created.ID)+"/playlists", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		playlists := decodeBody[[]playlistResponse](t, rec)
		require.Len(t, playlists, 1, tt.url)
		assert.Equal(t, tt.enabled, playlists[0].Enabled, tt.url)
	}
}

func boolPtr(v bool) *bool {
	return &v
}

func TestEnumerationAndPlaylists(t *testing.T) {
	ts := newTestServer(t)
	ts.extractor.listing = &domain.ChannelListing{
		ChannelID:   "UC123",
		ChannelName: "Example",
		Playlists: []domain.PlaylistEntry{
			{ID: "PL1", Title: "First", URL: "https://www.youtube.com/playlist?list=PL1", VideoCount: 2},
		},
	}

	channel, err := ts.channels.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@example", Enabled: true})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/channels/"+itoa(channel.ID)+"/enumerate", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decodeBody[usecase.Job](t, rec)
	require.NotEmpty(t, job.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = ts.channels.WaitJob(ctx, job.ID)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job = decodeBody[usecase.Job](t, rec)
	assert.Equal(t, usecase.JobSucceeded, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, 1, job.Result.NewPlaylists)

	rec = ts.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/channels/"+itoa(channel.ID)+"/playlists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	playlists := decodeBody[[]playlistResponse](t, rec)
	require.Len(t, playlists, 1)
	assert.False(t, playlists[0].Enabled)

	rec = ts.do(t, http.MethodPost, "/api/playlists/"+itoa(playlists[0].ID)+"/download", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/playlists/"+itoa(playlists[0].ID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/playlists/"+itoa(playlists[0].ID), map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[playlistResponse](t, rec).Enabled)
}

func TestDownloadChannel(t *testing.T) {
	ts := newTestServer(t)

	channel, err := ts.channels.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@example", Enabled: true})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/channels/"+itoa(channel.ID)+"/download", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	playlistURL := "https://www.youtube.com/playlist?list=PL1"
	_, _, err = ts.store.Playlists.Upsert(&domain.Playlist{ChannelID: channel.ID, ExternalID: "PL1", Title: "First", URL: playlistURL, Enabled: true})
	require.NoError(t, err)
	ts.extractor.videos[playlistURL] = []domain.VideoEntry{
		{ID: "vid1", Title: "One", Index: 1},
		{ID: "vid2", Title: "Two", Index: 2},
	}

	rec = ts.do(t, http.MethodPost, "/api/channels/"+itoa(channel.ID)+"/download", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"queued":2}`, rec.Body.String())

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/videos?status=completed", nil)
		return rec.Code == http.StatusOK && decodeBody[struct{ Count int }](t, rec).Count == 2
	}, 5*time.Second, 20*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/channels/"+itoa(channel.ID)+"/videos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[struct{ Count int }](t, rec).Count)

	rec = ts.do(t, http.MethodGet, "/api/download/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[struct {
		Queue  usecase.QueueStatus `json:"queue"`
		Counts map[string]int      `json:"counts"`
	}](t, rec)
	assert.Equal(t, 2, status.Counts["completed"])

	rec = ts.do(t, http.MethodPost, "/api/videos/vid1/redownload", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/videos/missing/redownload", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadSingleVideo(t *testing.T) {
	ts := newTestServer(t)
	url := "https://www.youtube.com/watch?v=abc123"
	ts.extractor.info[url] = &domain.VideoEntry{ID: "abc123", Title: "Single"}

	rec := ts.do(t, http.MethodPost, "/api/download/video", map[string]any{"url": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/download/video", map[string]any{"url": "https://example.com/nothing"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported URL")

	rec = ts.do(t, http.MethodPost, "/api/download/video", map[string]any{"url": url})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "abc123", decodeBody[videoResponse](t, rec).ID)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/videos/abc123", nil)
		return rec.Code == http.StatusOK && decodeBody[videoResponse](t, rec).Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestListVideos(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/videos?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/videos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "counts")

	rec = ts.do(t, http.MethodPost, "/api/videos/retry-failed", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"queued":0}`, rec.Body.String())
}

func TestSchedulerRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scheduler/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[cron.Status](t, rec).Running)

	rec = ts.do(t, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeBody[cron.Status](t, rec).IntervalDays)

	rec = ts.do(t, http.MethodPost, "/api/scheduler/trigger/5", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"channel_id":5,"queued":3}`, rec.Body.String())
	assert.Equal(t, []int64{5}, ts.scheduler.triggered)

	rec = ts.do(t, http.MethodPost, "/api/scheduler/trigger/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[cron.Status](t, rec).Running)
}

func TestProfiles(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/profiles", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/profiles", map[string]any{"name": "audio", "format": "bestaudio"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	profile := decodeBody[profileResponse](t, rec)
	assert.Equal(t, "bestaudio", profile.Format)

	rec = ts.do(t, http.MethodPost, "/api/profiles", map[string]any{"name": "audio"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := "/api/profiles/" + itoa(profile.ID)
	rec = ts.do(t, http.MethodPut, path, map[string]any{"extra_args": "--extract-audio"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[profileResponse](t, rec)
	assert.Equal(t, "audio", updated.Name)
	assert.Equal(t, "--extract-audio", updated.ExtraArgs)

	rec = ts.do(t, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]profileResponse](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestBasicAuth(t *testing.T) {
	store := memory.NewStore()
	channels := usecase.NewChannelManager(store.Channels, store.Playlists, store.Videos, store.Profiles, &stubExtractor{}, time.Minute)
	cfg := &config.Config{BasicAuthUsername: "admin", BasicAuthPassword: "secret"}
	handler := NewServer(cfg, channels, nil, &fakeScheduler{}).Handler()

	for _, path := range []string{"/api/health", "/api/channels", "/api/scheduler/status"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		assert.NotContains(t, rec.Body.String(), "channels")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
