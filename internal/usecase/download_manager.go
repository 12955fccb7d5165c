package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"yt_archiver/internal/domain"
	"yt_archiver/internal/infrastructure/ytdlp"
	"yt_archiver/internal/options"
)

const (
	// ShutdownCancelReason is stored on downloads still running when the shutdown timeout expires
	ShutdownCancelReason = "download cancelled: shutdown timeout exceeded"

	// InterruptedReason is stored on downloads left running by a previous process
	InterruptedReason = "interrupted by restart"

	defaultConcurrency  = 2
	defaultPollInterval = 250 * time.Millisecond
	defaultExitGrace    = 5 * time.Second
)

// DownloadArchive is the extractor's list of already downloaded video IDs
type DownloadArchive interface {
	Contains(videoID string) (bool, error)
	Remove(videoIDs ...string) (int, error)
}

// Compiler builds invocation options for a channel and playlist
type Compiler interface {
	Compile(channel *domain.Channel, playlist *domain.Playlist) (*domain.Invocation, error)
}

var _ Compiler = (*options.Compiler)(nil)

// DownloadManagerConfig holds the pool settings
type DownloadManagerConfig struct {
	// Concurrency is the fixed number of workers, 2 when zero
	Concurrency int

	// PartialExtensions are removed for a video after it fails
	PartialExtensions []string

	// PollInterval is how often Shutdown checks for busy workers
	PollInterval time.Duration

	// ExitGrace is how long Shutdown waits for cancelled downloads to exit before
	// their partial files are removed, 5s when zero. It never exceeds the shutdown timeout.
	ExitGrace time.Duration
}

// DownloadManager owns the download queue and its worker pool
type DownloadManager struct {
	videos    domain.VideoRepository
	playlists domain.PlaylistRepository
	channels  domain.ChannelRepository
	extractor domain.Extractor
	compiler  Compiler
	archive   DownloadArchive

	concurrency  int
	partialExts  []string
	pollInterval time.Duration
	exitGrace    time.Duration
	now          func() time.Time

	mu        sync.Mutex
	queue     *taskQueue
	active    map[string]*activeDownload
	alive     int
	busy      int
	workerSeq int
	stopping  bool
	forced    bool
	workers   sync.WaitGroup

	errMu sync.Mutex
	errs  *multierror.Error
}

// NewDownloadManager creates a new download manager. archive may be nil.
func NewDownloadManager(
	videos domain.VideoRepository,
	playlists domain.PlaylistRepository,
	channels domain.ChannelRepository,
	extractor domain.Extractor,
	compiler Compiler,
	archive DownloadArchive,
	cfg DownloadManagerConfig,
) *DownloadManager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ExitGrace <= 0 {
		cfg.ExitGrace = defaultExitGrace
	}
	if len(cfg.PartialExtensions) == 0 {
		cfg.PartialExtensions = ytdlp.DefaultPartialExtensions
	}

	return &DownloadManager{
		videos:       videos,
		playlists:    playlists,
		channels:     channels,
		extractor:    extractor,
		compiler:     compiler,
		archive:      archive,
		concurrency:  cfg.Concurrency,
		partialExts:  cfg.PartialExtensions,
		pollInterval: cfg.PollInterval,
		exitGrace:    cfg.ExitGrace,
		now:          time.Now,
		queue:        newTaskQueue(),
		active:       make(map[string]*activeDownload),
	}
}

// EnqueuePlaylist enumerates an enabled playlist, stores its videos and queues the pending ones.
// It returns how many tasks were queued.
func (m *DownloadManager) EnqueuePlaylist(ctx context.Context, playlistID int64) (int, error) {
	playlist, err := m.playlists.GetByID(playlistID)
	if err != nil {
		return 0, errors.Wrapf(err, "playlist %d", playlistID)
	}
	if !playlist.Enabled {
		return 0, errors.Wrapf(domain.ErrNotEnabled, "playlist %d", playlistID)
	}

	channel, err := m.channels.GetByID(playlist.ChannelID)
	if err != nil {
		return 0, errors.Wrapf(err, "channel %d", playlist.ChannelID)
	}

	queued, err := m.enqueuePlaylist(ctx, channel, playlist)
	if err != nil {
		return queued, err
	}
	return queued, m.Start()
}

// EnqueueChannel queues every enabled playlist of a channel.
// A failing playlist does not stop the others; their errors are returned together.
func (m *DownloadManager) EnqueueChannel(ctx context.Context, channelID int64) (int, error) {
	channel, err := m.channels.GetByID(channelID)
	if err != nil {
		return 0, errors.Wrapf(err, "channel %d", channelID)
	}

	playlists, err := m.playlists.GetByChannel(channelID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to list playlists of channel %d", channelID)
	}

	var enabled []*domain.Playlist
	for _, p := range playlists {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		return 0, errors.Wrapf(domain.ErrNoEnabledPlaylists, "channel %d", channelID)
	}

	var (
		total     int
		succeeded int
		result    *multierror.Error
	)
	for _, playlist := range enabled {
		n, err := m.enqueuePlaylist(ctx, channel, playlist)
		total += n
		if err != nil {
			log.WithFields(log.Fields{
				"channel_id":  channelID,
				"playlist_id": playlist.ID,
			}).WithError(err).Error("failed to queue playlist")
			result = multierror.Append(result, errors.Wrapf(err, "playlist %d", playlist.ID))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		succeeded++
	}

	if succeeded > 0 {
		if err := m.channels.TouchScraped(channelID, m.now()); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to stamp channel scrape time"))
		}
	}

	log.WithFields(log.Fields{
		"channel_id": channelID,
		"playlists":  len(enabled),
		"queued":     total,
	}).Info("channel queued")

	if err := m.Start(); err != nil {
		result = multierror.Append(result, err)
	}
	return total, result.ErrorOrNil()
}

// EnqueueSingleVideo resolves a video URL, stores it as pending and queues it.
// A video that is already completed or failed is returned unchanged and not queued.
func (m *DownloadManager) EnqueueSingleVideo(ctx context.Context, url string, channelID *int64) (*domain.Video, error) {
	var channel *domain.Channel
	if channelID != nil {
		c, err := m.channels.GetByID(*channelID)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d", *channelID)
		}
		channel = c
	}

	info, err := m.extractor.GetVideoInfo(ctx, url)
	if err != nil {
		return nil, err
	}

	video := &domain.Video{
		ID:         info.ID,
		ChannelID:  channelID,
		Title:      info.Title,
		URL:        url,
		Uploader:   info.Uploader,
		UploadDate: info.UploadDate,
		Duration:   info.Duration,
		Status:     domain.VideoStatusPending,
	}
	if err := m.videos.Upsert(video); err != nil {
		return nil, &domain.PersistenceError{Op: "upsert", VideoID: video.ID, Err: err}
	}

	stored, err := m.videos.GetByID(video.ID)
	if err != nil {
		return nil, err
	}
	if stored.Status != domain.VideoStatusPending {
		return stored, nil
	}

	inv, err := m.compiler.Compile(channel, nil)
	if err != nil {
		return nil, err
	}
	m.enqueue(newTask(stored.ID, url, 0, channel, nil, inv))
	return stored, m.Start()
}

// RetryFailed resets every failed video to pending, drops them from the download archive and queues them.
func (m *DownloadManager) RetryFailed() (int, error) {
	ids, err := m.videos.ResetFailed()
	if err != nil {
		return 0, errors.Wrap(err, "failed to reset failed videos")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if m.archive != nil {
		if _, err := m.archive.Remove(ids...); err != nil {
			return 0, err
		}
	}

	tasks, err := m.tasksFor(ids)
	if err != nil {
		return 0, err
	}
	n := m.enqueue(tasks...)

	log.WithField("videos", len(ids)).Info("retrying failed videos")
	return n, m.Start()
}

// Redownload resets one completed or failed video and queues it again
func (m *DownloadManager) Redownload(videoID string) error {
	if _, err := m.videos.GetByID(videoID); err != nil {
		return errors.Wrapf(err, "video %s", videoID)
	}
	if err := m.videos.Reset(videoID); err != nil {
		return errors.Wrapf(err, "failed to reset video %s", videoID)
	}

	if m.archive != nil {
		if _, err := m.archive.Remove(videoID); err != nil {
			return err
		}
	}

	tasks, err := m.tasksFor([]string{videoID})
	if err != nil {
		return err
	}
	m.enqueue(tasks...)
	return m.Start()
}

// RecoverInterrupted fails videos left in downloading by a previous process
func (m *DownloadManager) RecoverInterrupted() (int, error) {
	n, err := m.videos.FailInterrupted(InterruptedReason)
	if err != nil {
		return 0, errors.Wrap(err, "failed to recover interrupted downloads")
	}
	if n > 0 {
		log.WithField("videos", n).Warn("marked interrupted downloads as failed")
	}
	return n, nil
}

// Start launches the worker pool. It is a no-op while all workers are running.
// An idle pool with an empty queue first rebuilds the queue from pending videos.
func (m *DownloadManager) Start() error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return errors.New("download manager is shut down")
	}
	if m.alive >= m.concurrency {
		m.mu.Unlock()
		return nil
	}
	rebuild := m.alive == 0 && m.queue.len() == 0 && len(m.active) == 0
	m.mu.Unlock()

	if rebuild {
		tasks, err := m.pendingTasks()
		if err != nil {
			return err
		}
		if n := m.enqueue(tasks...); n > 0 {
			log.WithField("tasks", n).Info("rebuilt download queue from pending videos")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		return errors.New("download manager is shut down")
	}
	for m.alive < m.concurrency {
		m.alive++
		m.workerSeq++
		m.workers.Add(1)
		go m.work(m.workerSeq)
	}
	return nil
}

// Status returns the queue depth and in-flight downloads
func (m *DownloadManager) Status() QueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	status := QueueStatus{
		Queued:    m.queue.len(),
		Active:    len(m.active),
		Running:   m.alive > 0,
		Downloads: make([]ActiveDownloadStatus, 0, len(m.active)),
	}
	for id, a := range m.active {
		status.Downloads = append(status.Downloads, ActiveDownloadStatus{
			VideoID:        id,
			Progress:       a.progress,
			ElapsedSeconds: int64(now.Sub(a.startedAt) / time.Second),
			OutputDir:      a.outputDir,
		})
	}
	sort.Slice(status.Downloads, func(i, j int) bool {
		return status.Downloads[i].VideoID < status.Downloads[j].VideoID
	})
	return status
}

// Err returns every status write that could not be persisted so far
func (m *DownloadManager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.errs.ErrorOrNil()
}

// Shutdown stops claiming new tasks and waits up to timeout for running downloads.
// Downloads still running afterwards are cancelled, marked failed and their partial files removed;
// in that case the returned error wraps domain.ErrShutdownTimeout.
func (m *DownloadManager) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	log.WithField("timeout", timeout).Info("waiting for active downloads")

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if m.busyWorkers() == 0 {
			m.workers.Wait()
			return m.Err()
		}
		if !time.Now().Before(deadline) {
			break
		}
		<-ticker.C
	}

	m.mu.Lock()
	m.forced = true
	var stale []*activeDownload
	for id, a := range m.active {
		if a.finishing {
			continue
		}
		stale = append(stale, a)
		delete(m.active, id)
	}
	m.mu.Unlock()

	var result *multierror.Error
	result = multierror.Append(result, errors.Wrapf(domain.ErrShutdownTimeout, "%d downloads cancelled", len(stale)))

	for _, a := range stale {
		a.cancel()
		if err := m.videos.MarkFailed(a.task.VideoID, ShutdownCancelReason); err != nil {
			result = multierror.Append(result, m.recordPersistence("fail", a.task.VideoID, err))
		}
		log.WithField("video_id", a.task.VideoID).Warn("download cancelled by shutdown timeout")
	}

	// give cancelled processes a moment to exit before their files are removed
	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()
	grace := m.exitGrace
	if grace > timeout {
		grace = timeout
	}
	select {
	case <-done:
	case <-time.After(grace):
		log.WithField("grace", grace).Warn("workers did not exit after cancellation")
	}

	for _, a := range stale {
		m.cleanup(a.task)
	}
	return result.ErrorOrNil()
}

func (m *DownloadManager) busyWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

func (m *DownloadManager) work(worker int) {
	defer m.workers.Done()

	for {
		task := m.next()
		if task == nil {
			return
		}
		m.process(worker, task)

		m.mu.Lock()
		m.busy--
		m.mu.Unlock()
	}
}

// next pops a task, or retires the worker when the queue is drained or shutdown started
func (m *DownloadManager) next() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stopping {
		if task, ok := m.queue.pop(); ok {
			m.busy++
			return task
		}
	}
	m.alive--
	return nil
}

func (m *DownloadManager) process(worker int, task *Task) {
	entry := log.WithFields(log.Fields{
		"video_id": task.VideoID,
		"worker":   worker,
	})

	claimed, err := m.videos.Claim(task.VideoID)
	if err != nil {
		m.recordPersistence("claim", task.VideoID, err)
		return
	}
	if !claimed {
		entry.Debug("video is no longer pending, skipping")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	if m.forced {
		m.mu.Unlock()
		m.fail(entry, task, errors.New(ShutdownCancelReason))
		return
	}
	task.State = TaskDownloading
	m.active[task.VideoID] = &activeDownload{
		task:      task,
		startedAt: m.now(),
		outputDir: task.Options.OutputDir,
		cancel:    cancel,
	}
	m.mu.Unlock()

	entry.WithField("url", task.URL).Info("download started")

	path, err := m.extractor.Download(ctx, domain.DownloadRequest{
		URL:          task.URL,
		VideoID:      task.VideoID,
		PlaylistItem: task.PlaylistItem,
		Options:      task.Options,
	}, func(update domain.ProgressUpdate) {
		m.setProgress(task.VideoID, update.Percent)
	})

	var completion domain.Completion
	if err == nil {
		completion, err = m.completion(task, path)
	}

	if !m.takeFinish(task.VideoID) {
		entry.Warn("download ended after shutdown already failed it")
		return
	}
	defer m.removeActive(task.VideoID)

	if err != nil {
		m.fail(entry, task, err)
		return
	}

	if err := m.videos.MarkCompleted(task.VideoID, completion); err != nil {
		m.recordPersistence("complete", task.VideoID, err)
		return
	}
	entry.WithField("file", completion.FilePath).Info("download completed")
}

// completion builds the completed record for a finished download
func (m *DownloadManager) completion(task *Task, path string) (domain.Completion, error) {
	if path == "" {
		if m.archive != nil {
			archived, err := m.archive.Contains(task.VideoID)
			if err != nil {
				return domain.Completion{}, err
			}
			if archived {
				return domain.Completion{DownloadedAt: m.now()}, nil
			}
		}
		return domain.Completion{}, errors.New("download finished without producing a file")
	}

	if !filepath.IsAbs(path) && task.Options.OutputDir != "" {
		path = filepath.Join(task.Options.OutputDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Completion{}, errors.Wrap(err, "failed to stat downloaded file")
	}

	completion := domain.Completion{
		FilePath:     path,
		FileSize:     info.Size(),
		DownloadedAt: m.now(),
	}

	media, err := ytdlp.ReadMediaInfo(path)
	if err != nil {
		log.WithField("video_id", task.VideoID).WithError(err).Debug("no media info")
		return completion, nil
	}
	completion.Resolution = media.Resolution
	completion.FPS = media.FPS
	completion.VideoCodec = media.VideoCodec
	completion.AudioCodec = media.AudioCodec
	return completion, nil
}

func (m *DownloadManager) fail(entry *log.Entry, task *Task, cause error) {
	entry.WithError(cause).Error("download failed")

	if err := m.videos.MarkFailed(task.VideoID, cause.Error()); err != nil {
		m.recordPersistence("fail", task.VideoID, err)
	}
	m.cleanup(task)
}

func (m *DownloadManager) cleanup(task *Task) {
	removed, err := ytdlp.CleanupPartials(task.Options.OutputDir, task.VideoID, m.partialExts)
	entry := log.WithField("video_id", task.VideoID)
	if err != nil {
		entry.WithError(err).Warn("failed to remove partial files")
	}
	if len(removed) > 0 {
		entry.WithField("files", removed).Info("removed partial files")
	}
}

func (m *DownloadManager) setProgress(videoID string, percent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.active[videoID]; ok {
		a.progress = percent
	}
}

// takeFinish hands the final status write to the worker unless shutdown already took it
func (m *DownloadManager) takeFinish(videoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[videoID]
	if !ok {
		return false
	}
	a.finishing = true
	return true
}

func (m *DownloadManager) removeActive(videoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, videoID)
}

func (m *DownloadManager) recordPersistence(op, videoID string, err error) error {
	perr := &domain.PersistenceError{Op: op, VideoID: videoID, Err: err}
	log.WithField("video_id", videoID).WithError(perr).Error("failed to persist download status")

	m.errMu.Lock()
	m.errs = multierror.Append(m.errs, perr)
	m.errMu.Unlock()
	return perr
}

// enqueue pushes tasks that are neither queued nor running and returns how many were added
func (m *DownloadManager) enqueue(tasks ...*Task) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, task := range tasks {
		if _, running := m.active[task.VideoID]; running {
			continue
		}
		if m.queue.push(task) {
			n++
		}
	}
	return n
}

func (m *DownloadManager) enqueuePlaylist(ctx context.Context, channel *domain.Channel, playlist *domain.Playlist) (int, error) {
	entry := log.WithFields(log.Fields{
		"channel_id":  channel.ID,
		"playlist_id": playlist.ID,
	})
	entry.WithField("title", playlist.Title).Info("enumerating playlist videos")

	videos, err := m.extractor.EnumeratePlaylistVideos(ctx, playlist.URL)
	if err != nil {
		return 0, err
	}

	inv, err := m.compiler.Compile(channel, playlist)
	if err != nil {
		return 0, err
	}

	channelID, playlistID := channel.ID, playlist.ID
	var tasks []*Task
	for _, v := range videos {
		video := &domain.Video{
			ID:            v.ID,
			ChannelID:     &channelID,
			PlaylistID:    &playlistID,
			Title:         v.Title,
			URL:           v.URL,
			Uploader:      v.Uploader,
			UploadDate:    v.UploadDate,
			Duration:      v.Duration,
			PlaylistIndex: v.Index,
			Status:        domain.VideoStatusPending,
		}
		if err := m.videos.Upsert(video); err != nil {
			return 0, &domain.PersistenceError{Op: "upsert", VideoID: v.ID, Err: err}
		}

		stored, err := m.videos.GetByID(v.ID)
		if err != nil {
			return 0, err
		}
		if stored.Status != domain.VideoStatusPending {
			continue
		}
		tasks = append(tasks, newTask(v.ID, v.URL, v.Index, channel, playlist, inv))
	}

	if err := m.playlists.TouchScraped(playlist.ID, m.now()); err != nil {
		entry.WithError(err).Warn("failed to stamp playlist scrape time")
	}

	n := m.enqueue(tasks...)
	entry.WithFields(log.Fields{"videos": len(videos), "queued": n}).Info("playlist queued")
	return n, nil
}

// pendingTasks rebuilds tasks for every pending video, compiling options once per channel and playlist
func (m *DownloadManager) pendingTasks() ([]*Task, error) {
	pending, err := m.videos.GetPending()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load pending videos")
	}
	return m.buildTasks(pending), nil
}

func (m *DownloadManager) tasksFor(ids []string) ([]*Task, error) {
	videos := make([]*domain.Video, 0, len(ids))
	for _, id := range ids {
		video, err := m.videos.GetByID(id)
		if err != nil {
			return nil, errors.Wrapf(err, "video %s", id)
		}
		videos = append(videos, video)
	}
	return m.buildTasks(videos), nil
}

type sourceKey struct {
	channelID  int64
	playlistID int64
}

type source struct {
	channel  *domain.Channel
	playlist *domain.Playlist
	options  *domain.Invocation
}

func (m *DownloadManager) buildTasks(videos []*domain.Video) []*Task {
	sources := make(map[sourceKey]*source)
	tasks := make([]*Task, 0, len(videos))

	for _, video := range videos {
		var key sourceKey
		if video.ChannelID != nil {
			key.channelID = *video.ChannelID
		}
		if video.PlaylistID != nil {
			key.playlistID = *video.PlaylistID
		}

		src, ok := sources[key]
		if !ok {
			var err error
			src, err = m.loadSource(key)
			if err != nil {
				log.WithField("video_id", video.ID).WithError(err).Warn("cannot rebuild task")
				continue
			}
			sources[key] = src
		}

		tasks = append(tasks, newTask(video.ID, video.URL, video.PlaylistIndex, src.channel, src.playlist, src.options))
	}
	return tasks
}

func (m *DownloadManager) loadSource(key sourceKey) (*source, error) {
	src := &source{}
	if key.channelID != 0 {
		channel, err := m.channels.GetByID(key.channelID)
		if err != nil {
			return nil, err
		}
		src.channel = channel
	}
	if key.playlistID != 0 {
		playlist, err := m.playlists.GetByID(key.playlistID)
		if err != nil {
			return nil, err
		}
		src.playlist = playlist
	}

	inv, err := m.compiler.Compile(src.channel, src.playlist)
	if err != nil {
		return nil, err
	}
	src.options = inv
	return src, nil
}

// newTask downloads through the playlist when the playlist folder layout is in use,
// so yt-dlp can fill the playlist fields of the output template
func newTask(videoID, videoURL string, index int, channel *domain.Channel, playlist *domain.Playlist, inv *domain.Invocation) *Task {
	task := &Task{
		VideoID: videoID,
		URL:     videoURL,
		Options: inv,
	}
	if channel != nil {
		id := channel.ID
		task.ChannelID = &id
	}
	if playlist != nil {
		id := playlist.ID
		task.PlaylistID = &id
		if index > 0 && channel != nil && !channel.FlatMode {
			task.URL = playlist.URL
			task.PlaylistItem = index
		}
	}
	if task.URL == "" {
		task.URL = ytdlp.VideoURL(videoID)
	}
	return task
}
