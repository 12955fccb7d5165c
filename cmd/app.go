package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"yt_archiver/config"
	"yt_archiver/internal/domain"
	"yt_archiver/internal/infrastructure/extractor"
	httpclient "yt_archiver/internal/infrastructure/http"
	"yt_archiver/internal/infrastructure/youtube"
	"yt_archiver/internal/infrastructure/ytdlp"
	"yt_archiver/internal/options"
	"yt_archiver/internal/repository/memory"
	sqliterepo "yt_archiver/internal/repository/sqlite"
	"yt_archiver/internal/usecase"
)

type repositories struct {
	channels  domain.ChannelRepository
	playlists domain.PlaylistRepository
	videos    domain.VideoRepository
	profiles  domain.ProfileRepository
}

// app holds the wired services shared by the server and the CLI commands
type app struct {
	db        *sql.DB
	repos     repositories
	channels  *usecase.ChannelManager
	downloads *usecase.DownloadManager
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	if cfg.IsMemoryDatabase() {
		log.Warn("using in-memory store, records are lost on exit")
		store := memory.NewStore()
		a.repos = repositories{
			channels:  store.Channels,
			playlists: store.Playlists,
			videos:    store.Videos,
			profiles:  store.Profiles,
		}
	} else {
		db, err := sqliterepo.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
		a.db = db
		a.repos = repositories{
			channels:  sqliterepo.NewChannelRepository(db),
			playlists: sqliterepo.NewPlaylistRepository(db),
			videos:    sqliterepo.NewVideoRepository(db),
			profiles:  sqliterepo.NewProfileRepository(db),
		}
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to create download directory")
	}

	ytdl, err := ytdlp.NewService(cfg.YtDlpPath, cfg.CookiesPath)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "yt-dlp is not available")
	}
	if version, err := ytdl.Version(ctx); err != nil {
		log.WithError(err).Warn("failed to query yt-dlp version")
	} else {
		log.WithField("version", version).Info("found yt-dlp")
	}

	var fallback domain.Extractor
	if cfg.YouTubeAPIKey != "" {
		client := httpclient.NewHTTPClient(cfg)
		quota := youtube.NewQuota(cfg.YouTubeQuotaFile, cfg.YouTubeDailyQuota)
		api, err := youtube.NewService(ctx, cfg.YouTubeAPIKey, client.GetClient(), quota)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to create youtube api client")
		}
		status := quota.Status()
		log.WithFields(log.Fields{
			"used":  status.Used,
			"limit": status.Limit,
		}).Info("youtube data api enabled for enumeration fallback")
		fallback = api
	}
	source := extractor.New(ytdl, fallback)

	compiler := options.NewCompiler(a.repos.profiles, options.Defaults{
		OutputDir:         cfg.DownloadDir,
		ArchiveFile:       cfg.ArchiveFile,
		Format:            cfg.DefaultFormat,
		MergeFormat:       cfg.MergeFormat,
		RestrictFilenames: cfg.RestrictFilenames,
	})
	archive := ytdlp.NewArchive(compiler.Defaults().ArchiveFile)

	a.downloads = usecase.NewDownloadManager(
		a.repos.videos,
		a.repos.playlists,
		a.repos.channels,
		source,
		compiler,
		archive,
		usecase.DownloadManagerConfig{
			Concurrency:       cfg.DownloadConcurrency,
			PartialExtensions: cfg.PartialFileExtensions,
		},
	)
	a.channels = usecase.NewChannelManager(
		a.repos.channels,
		a.repos.playlists,
		a.repos.videos,
		a.repos.profiles,
		source,
		cfg.EnumerateTimeout,
	)
	a.channels.SetBaseContext(ctx)

	return a, nil
}

// Close releases the database handle
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Error("failed to close database")
	}
}
