package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt_archiver/internal/domain"
)

func newChannelManager(f *fixture) *ChannelManager {
	return NewChannelManager(f.store.Channels, f.store.Playlists, f.store.Videos, f.store.Profiles, f.extractor, time.Minute)
}

func TestChannelManager_CreateChannel(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	channel, err := m.CreateChannel(&domain.Channel{URL: " https://www.youtube.com/@archive "})
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/@archive", channel.URL)
	assert.Equal(t, domain.DefaultRescrapeIntervalDays, channel.RescrapeIntervalDays)
	assert.Equal(t, domain.SponsorBlockMark, channel.SponsorBlockMode)

	_, err = m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	tests := []struct {
		name    string
		channel *domain.Channel
		want    error
	}{
		{"missing url", &domain.Channel{}, domain.ErrInvalidInput},
		{"relative url", &domain.Channel{URL: "@archive"}, domain.ErrInvalidInput},
		{"bad mode", &domain.Channel{URL: "https://a.example/x", SponsorBlockMode: "skip"}, domain.ErrInvalidInput},
		{"bad category", &domain.Channel{URL: "https://a.example/y", SponsorBlockCategories: "sponsor,ads"}, domain.ErrInvalidInput},
		{"unknown profile", &domain.Channel{URL: "https://a.example/z", ProfileID: int64Ptr(42)}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateChannel(tt.channel)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChannelManager_UpdateAndDelete(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive"})
	require.NoError(t, err)

	channel.DownloadSubtitles = true
	channel.SubtitleLanguages = "en,de"
	channel.RescrapeIntervalDays = 0
	updated, err := m.UpdateChannel(channel)
	require.NoError(t, err)
	assert.True(t, updated.DownloadSubtitles)
	assert.Equal(t, domain.DefaultRescrapeIntervalDays, updated.RescrapeIntervalDays)

	_, err = m.UpdateChannel(&domain.Channel{ID: 999, URL: "https://a.example"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, m.DeleteChannel(channel.ID))
	_, err = m.GetChannel(channel.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChannelManager_RefreshPlaylists(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive", AutoAddNewPlaylists: true})
	require.NoError(t, err)

	f.extractor.listing = &domain.ChannelListing{
		ChannelID:   "UC123",
		ChannelName: "Archive",
		Playlists: []domain.PlaylistEntry{
			{ID: "PL1", Title: "Beta", URL: "https://www.youtube.com/playlist?list=PL1", VideoCount: 2},
			{ID: "PL2", Title: "alpha", URL: "https://www.youtube.com/playlist?list=PL2", VideoCount: 5},
		},
	}

	result, err := m.RefreshPlaylists(context.Background(), channel.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Playlists)
	assert.Equal(t, 2, result.NewPlaylists)

	stored, err := m.GetChannel(channel.ID)
	require.NoError(t, err)
	assert.Equal(t, "UC123", stored.ExternalID)
	assert.Equal(t, "Archive", stored.Name)
	assert.NotNil(t, stored.LastScrapedAt)

	playlists, err := m.ListPlaylists(channel.ID)
	require.NoError(t, err)
	require.Len(t, playlists, 2)
	assert.True(t, playlists[0].Enabled)

	// a disabled playlist stays disabled across enumerations
	_, err = m.SetPlaylistEnabled(playlists[0].ID, false)
	require.NoError(t, err)

	f.extractor.listing.Playlists[0].VideoCount = 3
	result, err = m.RefreshPlaylists(context.Background(), channel.ID)
	require.NoError(t, err)
	assert.Zero(t, result.NewPlaylists)

	refreshed, err := f.store.Playlists.GetByID(playlists[0].ID)
	require.NoError(t, err)
	assert.False(t, refreshed.Enabled)
}

func TestChannelManager_NewPlaylistsDisabledWithoutAutoAdd(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive"})
	require.NoError(t, err)
	f.extractor.listing = &domain.ChannelListing{
		Playlists: []domain.PlaylistEntry{{ID: "PL1", Title: "One", URL: "https://www.youtube.com/playlist?list=PL1"}},
	}

	_, err = m.RefreshPlaylists(context.Background(), channel.ID)
	require.NoError(t, err)

	playlists, err := m.ListPlaylists(channel.ID)
	require.NoError(t, err)
	require.Len(t, playlists, 1)
	assert.False(t, playlists[0].Enabled)
}

func TestChannelManager_EnumerationJob(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive"})
	require.NoError(t, err)
	f.extractor.listing = &domain.ChannelListing{ChannelID: "UC1", ChannelName: "Archive"}

	job, err := m.StartEnumeration(channel.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobRunning, job.State)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := m.WaitJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobSucceeded, done.State)
	assert.True(t, done.Done())
	require.NotNil(t, done.Result)
	assert.Equal(t, "UC1", done.Result.ExternalID)
	assert.NotNil(t, done.FinishedAt)

	polled, err := m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, done, polled)

	_, err = m.Job("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.StartEnumeration(999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChannelManager_EnumerationJobFailure(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive"})
	require.NoError(t, err)
	f.extractor.listingErr = &domain.AdapterError{Op: "enumerate playlists", Output: "ERROR: channel does not exist"}

	job, err := m.StartEnumeration(channel.ID)
	require.NoError(t, err)

	done, err := m.WaitJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, done.State)
	assert.Equal(t, "enumerate playlists: ERROR: channel does not exist", done.Error)
}

// blockingExtractor enumerates only after its context ends
type blockingExtractor struct {
	*fakeExtractor
}

func (b blockingExtractor) EnumeratePlaylists(ctx context.Context, sourceURL string) (*domain.ChannelListing, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestChannelManager_CancelJob(t *testing.T) {
	f := newFixture(t, 1)
	m := NewChannelManager(f.store.Channels, f.store.Playlists, f.store.Videos, f.store.Profiles, blockingExtractor{f.extractor}, 0)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive"})
	require.NoError(t, err)

	job, err := m.StartEnumeration(channel.ID)
	require.NoError(t, err)

	cancelled, err := m.CancelJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCancelled, cancelled.State)

	stored, err := m.GetChannel(channel.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastScrapedAt)
}

func TestChannelManager_Profiles(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)

	_, err := m.CreateProfile(&domain.Profile{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	profile, err := m.CreateProfile(&domain.Profile{Name: "archive", Format: "bestaudio", MergeFormat: "mkv"})
	require.NoError(t, err)

	_, err = m.CreateProfile(&domain.Profile{Name: "archive"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	channel, err := m.CreateChannel(&domain.Channel{URL: "https://www.youtube.com/@archive", ProfileID: &profile.ID})
	require.NoError(t, err)
	require.NotNil(t, channel.ProfileID)

	profile.ExtraArgs = "--embed-chapters"
	updated, err := m.UpdateProfile(profile)
	require.NoError(t, err)
	assert.Equal(t, "--embed-chapters", updated.ExtraArgs)

	profiles, err := m.ListProfiles()
	require.NoError(t, err)
	assert.Len(t, profiles, 1)

	require.NoError(t, m.DeleteProfile(profile.ID))
	stored, err := m.GetChannel(channel.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ProfileID)

	_, err = m.GetProfile(profile.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChannelManager_VideoQueries(t *testing.T) {
	f := newFixture(t, 1)
	m := newChannelManager(f)
	channel := f.addChannel(t, &domain.Channel{})
	playlist := f.addPlaylist(t, channel.ID, "PL1", true, "a", "b")

	_, err := f.manager.EnqueuePlaylist(context.Background(), playlist.ID)
	require.NoError(t, err)
	f.waitIdle(t)

	videos, err := m.ListPlaylistVideos(playlist.ID)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "a", videos[0].ID)

	byChannel, err := m.ListChannelVideos(channel.ID)
	require.NoError(t, err)
	assert.Len(t, byChannel, 2)

	completed, err := m.ListVideosByStatus(domain.VideoStatusCompleted, 1, 0)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	_, err = m.ListVideosByStatus("bogus", 10, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	counts, err := m.CountVideos()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.VideoStatusCompleted])

	video, err := m.GetVideo("b")
	require.NoError(t, err)
	assert.Equal(t, 2, video.PlaylistIndex)

	_, err = m.GetVideo("zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func int64Ptr(v int64) *int64 {
	return &v
}
