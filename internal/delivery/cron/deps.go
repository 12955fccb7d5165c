//go:generate mockgen -source=deps.go -destination=deps_mock_test.go -package=cron

package cron

import (
	"context"

	"yt_archiver/internal/domain"
	"yt_archiver/internal/usecase"
)

// ChannelLister lists the configured channels
type ChannelLister interface {
	GetAll() ([]*domain.Channel, error)
}

// ChannelDownloader queues the downloads of a channel
type ChannelDownloader interface {
	EnqueueChannel(ctx context.Context, channelID int64) (int, error)
	Status() usecase.QueueStatus
}

// PlaylistRefresher re-enumerates the playlists of a channel
type PlaylistRefresher interface {
	RefreshPlaylists(ctx context.Context, channelID int64) (*usecase.EnumerationResult, error)
}
