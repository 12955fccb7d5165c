package extractor

import (
	"context"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"yt_archiver/internal/domain"
)

// Fallback answers metadata queries from the primary extractor and retries
// them on the secondary one when the primary fails. Downloads always use the primary.
type Fallback struct {
	primary   domain.Extractor
	secondary domain.Extractor
}

// New composes primary with an optional secondary. A nil secondary returns primary unchanged.
func New(primary, secondary domain.Extractor) domain.Extractor {
	if secondary == nil {
		return primary
	}
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) EnumeratePlaylists(ctx context.Context, sourceURL string) (*domain.ChannelListing, error) {
	listing, err := f.primary.EnumeratePlaylists(ctx, sourceURL)
	if err == nil {
		return listing, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	logFallback("enumerate playlists", sourceURL, err)
	listing, fallbackErr := f.secondary.EnumeratePlaylists(ctx, sourceURL)
	if fallbackErr != nil {
		return nil, combine(err, fallbackErr)
	}
	return listing, nil
}

func (f *Fallback) EnumeratePlaylistVideos(ctx context.Context, playlistURL string) ([]domain.VideoEntry, error) {
	videos, err := f.primary.EnumeratePlaylistVideos(ctx, playlistURL)
	if err == nil {
		return videos, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	logFallback("enumerate playlist videos", playlistURL, err)
	videos, fallbackErr := f.secondary.EnumeratePlaylistVideos(ctx, playlistURL)
	if fallbackErr != nil {
		return nil, combine(err, fallbackErr)
	}
	return videos, nil
}

func (f *Fallback) GetVideoInfo(ctx context.Context, url string) (*domain.VideoEntry, error) {
	info, err := f.primary.GetVideoInfo(ctx, url)
	if err == nil {
		return info, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	logFallback("get video info", url, err)
	info, fallbackErr := f.secondary.GetVideoInfo(ctx, url)
	if fallbackErr != nil {
		return nil, combine(err, fallbackErr)
	}
	return info, nil
}

func (f *Fallback) Download(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error) {
	return f.primary.Download(ctx, req, onProgress)
}

func logFallback(op, url string, err error) {
	log.WithFields(log.Fields{
		"op":  op,
		"url": url,
	}).WithError(err).Warn("primary extractor failed, using youtube api")
}

// combine keeps the primary error first so callers still see the tool diagnostic
func combine(primary, secondary error) error {
	return multierror.Append(primary, secondary)
}
