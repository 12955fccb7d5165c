package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BrianHicks/finch/duration"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"yt_archiver/internal/domain"
)

const maxResults = 50

type apiKey string

func (key apiKey) Get() (string, string) {
	return "key", string(key)
}

// Service is a metadata-only Extractor backed by the YouTube Data API v3.
// Every list call costs one quota unit.
type Service struct {
	client *youtube.Service
	key    apiKey
	quota  *Quota
}

// NewService creates a YouTube Data API client using the shared HTTP client
func NewService(ctx context.Context, key string, httpClient *http.Client, quota *Quota, opts ...option.ClientOption) (*Service, error) {
	if key == "" {
		return nil, errors.New("youtube api key is empty")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	client, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create youtube client")
	}

	return &Service{client: client, key: apiKey(key), quota: quota}, nil
}

// Quota returns the quota tracker
func (s *Service) Quota() *Quota {
	return s.quota
}

func (s *Service) spend() error {
	if s.quota == nil {
		return nil
	}
	return s.quota.Reserve(1)
}

// EnumeratePlaylists lists the public playlists of a channel
func (s *Service) EnumeratePlaylists(ctx context.Context, sourceURL string) (*domain.ChannelListing, error) {
	channel, err := s.resolveChannel(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	listing := &domain.ChannelListing{ChannelID: channel.Id}
	if channel.Snippet != nil {
		listing.ChannelName = channel.Snippet.Title
	}

	pageToken := ""
	for {
		if err := s.spend(); err != nil {
			return nil, err
		}

		req := s.client.Playlists.List([]string{"id", "snippet", "contentDetails"}).
			ChannelId(channel.Id).
			MaxResults(maxResults).
			Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := req.Do(s.key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query playlists")
		}

		for _, item := range resp.Items {
			entry := domain.PlaylistEntry{
				ID:  item.Id,
				URL: PlaylistURL(item.Id),
			}
			if item.Snippet != nil {
				entry.Title = item.Snippet.Title
			}
			if item.ContentDetails != nil {
				entry.VideoCount = int(item.ContentDetails.ItemCount)
			}
			listing.Playlists = append(listing.Playlists, entry)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	log.WithFields(log.Fields{
		"channel_id": listing.ChannelID,
		"playlists":  len(listing.Playlists),
	}).Info("enumerated playlists via youtube api")

	return listing, nil
}

// EnumeratePlaylistVideos lists playlist items in playlist order
func (s *Service) EnumeratePlaylistVideos(ctx context.Context, playlistURL string) ([]domain.VideoEntry, error) {
	playlistID, err := playlistIDFromURL(playlistURL)
	if err != nil {
		return nil, err
	}

	var videos []domain.VideoEntry
	pageToken := ""
	for {
		if err := s.spend(); err != nil {
			return nil, err
		}

		req := s.client.PlaylistItems.List([]string{"id", "snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(maxResults).
			Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		resp, err := req.Do(s.key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query playlist items")
		}

		for _, item := range resp.Items {
			entry, ok := playlistItemEntry(item)
			if !ok {
				continue
			}
			entry.Index = len(videos) + 1
			videos = append(videos, entry)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return videos, nil
}

// GetVideoInfo resolves a single video
func (s *Service) GetVideoInfo(ctx context.Context, rawURL string) (*domain.VideoEntry, error) {
	videoID, err := videoIDFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := s.spend(); err != nil {
		return nil, err
	}

	resp, err := s.client.Videos.List([]string{"id", "snippet", "contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do(s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query video")
	}
	if len(resp.Items) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "video %s", videoID)
	}

	item := resp.Items[0]
	entry := &domain.VideoEntry{
		ID:  item.Id,
		URL: VideoURL(item.Id),
	}
	if item.Snippet != nil {
		entry.Title = item.Snippet.Title
		entry.Uploader = item.Snippet.ChannelTitle
		entry.ChannelID = item.Snippet.ChannelId
		entry.UploadDate = uploadDate(item.Snippet.PublishedAt)
	}
	if item.ContentDetails != nil {
		entry.Duration = parseISODuration(item.ContentDetails.Duration)
	}
	return entry, nil
}

// Download is not available through the metadata API
func (s *Service) Download(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error) {
	return "", &domain.AdapterError{Op: "download", Err: errors.New("youtube api does not serve media")}
}

func (s *Service) resolveChannel(ctx context.Context, sourceURL string) (*youtube.Channel, error) {
	ref, err := parseChannelURL(sourceURL)
	if err != nil {
		return nil, err
	}

	if err := s.spend(); err != nil {
		return nil, err
	}

	req := s.client.Channels.List([]string{"id", "snippet"}).Context(ctx)
	switch ref.kind {
	case channelByID:
		req = req.Id(ref.value)
	case channelByHandle:
		req = req.ForHandle(ref.value)
	case channelByUser:
		req = req.ForUsername(ref.value)
	}

	resp, err := req.Do(s.key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query channel")
	}
	if len(resp.Items) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "channel %s", sourceURL)
	}
	return resp.Items[0], nil
}

type channelRefKind int

const (
	channelByID channelRefKind = iota
	channelByHandle
	channelByUser
)

type channelRef struct {
	kind  channelRefKind
	value string
}

var (
	channelIDPattern = regexp.MustCompile(`/channel/(UC[\w-]+)`)
	handlePattern    = regexp.MustCompile(`/(@[\w.-]+)`)
	userPattern      = regexp.MustCompile(`/(?:c|user)/([\w.-]+)`)
)

func parseChannelURL(raw string) (channelRef, error) {
	raw = strings.TrimSpace(raw)
	if m := channelIDPattern.FindStringSubmatch(raw); m != nil {
		return channelRef{kind: channelByID, value: m[1]}, nil
	}
	if m := handlePattern.FindStringSubmatch(raw); m != nil {
		return channelRef{kind: channelByHandle, value: m[1]}, nil
	}
	if m := userPattern.FindStringSubmatch(raw); m != nil {
		return channelRef{kind: channelByUser, value: m[1]}, nil
	}
	return channelRef{}, errors.Errorf("could not extract channel from url %q", raw)
}

func playlistIDFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "invalid playlist url %q", raw)
	}
	if id := u.Query().Get("list"); id != "" {
		return id, nil
	}
	return "", errors.Errorf("no playlist id in url %q", raw)
}

func videoIDFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "invalid video url %q", raw)
	}
	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case strings.HasSuffix(u.Host, "youtu.be") && len(parts) > 0 && parts[0] != "":
		return parts[0], nil
	case len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "live" || parts[0] == "embed"):
		return parts[1], nil
	}
	return "", errors.Errorf("no video id in url %q", raw)
}

func playlistItemEntry(item *youtube.PlaylistItem) (domain.VideoEntry, bool) {
	var entry domain.VideoEntry
	if item.ContentDetails != nil {
		entry.ID = item.ContentDetails.VideoId
		entry.UploadDate = uploadDate(item.ContentDetails.VideoPublishedAt)
	}
	if item.Snippet != nil {
		entry.Title = item.Snippet.Title
		entry.Uploader = item.Snippet.VideoOwnerChannelTitle
		entry.ChannelID = item.Snippet.VideoOwnerChannelId
		if entry.ID == "" && item.Snippet.ResourceId != nil {
			entry.ID = item.Snippet.ResourceId.VideoId
		}
	}
	if entry.ID == "" {
		return entry, false
	}
	entry.URL = VideoURL(entry.ID)
	return entry, true
}

// uploadDate converts an RFC3339 timestamp into yt-dlp's YYYYMMDD form
func uploadDate(published string) string {
	if published == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return ""
	}
	return t.UTC().Format("20060102")
}

// parseISODuration returns the number of seconds in an ISO 8601 duration such as PT1H2M3S
func parseISODuration(raw string) int {
	d, err := duration.FromString(raw)
	if err != nil {
		return 0
	}
	return int(d.ToDuration().Seconds())
}

// PlaylistURL builds the canonical playlist URL
func PlaylistURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/playlist?list=%s", id)
}

// VideoURL builds the canonical watch URL
func VideoURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}
