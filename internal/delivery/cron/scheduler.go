package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	cron "github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"yt_archiver/internal/domain"
	"yt_archiver/internal/usecase"
)

// Status reports the scheduler state together with the download queue
type Status struct {
	Running      bool                `json:"running"`
	IntervalDays int                 `json:"interval_days"`
	LastCheck    *time.Time          `json:"last_check,omitempty"`
	NextCheck    *time.Time          `json:"next_check,omitempty"`
	Queue        usecase.QueueStatus `json:"queue"`
}

// Scheduler periodically queues downloads for channels that are due for a re-scrape
type Scheduler struct {
	channels     ChannelLister
	downloader   ChannelDownloader
	refresher    PlaylistRefresher
	intervalDays int
	now          func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	entry     cron.EntryID
	cancel    context.CancelFunc
	lastCheck *time.Time
	checks    sync.WaitGroup
}

// NewScheduler creates a new scheduler. refresher may be nil.
func NewScheduler(channels ChannelLister, downloader ChannelDownloader, refresher PlaylistRefresher, intervalDays int) *Scheduler {
	if intervalDays <= 0 {
		intervalDays = domain.DefaultRescrapeIntervalDays
	}
	return &Scheduler{
		channels:     channels,
		downloader:   downloader,
		refresher:    refresher,
		intervalDays: intervalDays,
		now:          time.Now,
	}
}

// Start schedules the recurring check and runs one check immediately.
// Starting a running scheduler does nothing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)

	spec := fmt.Sprintf("@every %s", time.Duration(s.intervalDays)*24*time.Hour)
	entry, err := c.AddFunc(spec, func() { s.runCheck(ctx) })
	if err != nil {
		cancel()
		return errors.Wrapf(err, "failed to schedule %q", spec)
	}

	c.Start()
	s.cron = c
	s.entry = entry
	s.cancel = cancel

	s.checks.Add(1)
	go func() {
		defer s.checks.Done()
		s.runCheck(ctx)
	}()

	log.WithField("interval_days", s.intervalDays).Info("scheduler started")
	return nil
}

// Stop cancels the timer and waits for a running check to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.checks.Wait()
	log.Info("scheduler stopped")
}

// Status returns whether the timer is active and the queue state
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	status := Status{
		Running:      s.cron != nil,
		IntervalDays: s.intervalDays,
		LastCheck:    s.lastCheck,
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			status.NextCheck = &next
		}
	}
	s.mu.Unlock()

	status.Queue = s.downloader.Status()
	return status
}

// CheckAndDownload queues every enabled channel whose re-scrape interval has elapsed.
// A failing channel is logged and skipped; all failures are returned together.
func (s *Scheduler) CheckAndDownload(ctx context.Context) error {
	channels, err := s.channels.GetAll()
	if err != nil {
		return errors.Wrap(err, "failed to list channels")
	}

	now := s.now()
	var result *multierror.Error
	due := 0
	for _, channel := range channels {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entry := log.WithField("channel_id", channel.ID)
		if !channel.Enabled {
			entry.Debug("channel disabled, skipping")
			continue
		}
		if !channel.IsDue(now) {
			entry.Debug("channel not due")
			continue
		}

		due++
		queued, err := s.download(ctx, channel)
		if err != nil {
			entry.WithError(err).Error("scheduled download failed")
			result = multierror.Append(result, errors.Wrapf(err, "channel %d", channel.ID))
			continue
		}
		entry.WithField("queued", queued).Info("scheduled download queued")
	}

	log.WithFields(log.Fields{
		"channels": len(channels),
		"due":      due,
	}).Info("scheduler check finished")
	return result.ErrorOrNil()
}

// TriggerChannel queues a channel immediately, ignoring its schedule
func (s *Scheduler) TriggerChannel(ctx context.Context, channelID int64) (int, error) {
	channels, err := s.channels.GetAll()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list channels")
	}
	for _, channel := range channels {
		if channel.ID == channelID {
			return s.download(ctx, channel)
		}
	}
	return 0, errors.Wrapf(domain.ErrNotFound, "channel %d", channelID)
}

// download refreshes playlists of auto-adding channels before queueing them
func (s *Scheduler) download(ctx context.Context, channel *domain.Channel) (int, error) {
	if s.refresher != nil && channel.AutoAddNewPlaylists {
		result, err := s.refresher.RefreshPlaylists(ctx, channel.ID)
		if err != nil {
			log.WithField("channel_id", channel.ID).WithError(err).Warn("playlist refresh failed, using known playlists")
		} else if result.NewPlaylists > 0 {
			log.WithFields(log.Fields{
				"channel_id": channel.ID,
				"new":        result.NewPlaylists,
			}).Info("found new playlists")
		}
	}
	return s.downloader.EnqueueChannel(ctx, channel.ID)
}

func (s *Scheduler) runCheck(ctx context.Context) {
	start := s.now()
	s.mu.Lock()
	s.lastCheck = &start
	s.mu.Unlock()

	if err := s.CheckAndDownload(ctx); err != nil {
		log.WithError(err).Warn("scheduler check finished with errors")
	}
}

// cronLogger routes cron's own messages to logrus
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) log.Fields {
	out := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
