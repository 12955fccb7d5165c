package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"yt_archiver/internal/logger"
)

const drainPollInterval = time.Second

// retryFailedCommand resets failed videos and downloads them without starting the API server
type retryFailedCommand struct {
	opts *Opts
}

func (c *retryFailedCommand) Execute(args []string) error {
	cfg, err := loadConfig(*c.opts)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	queued, err := a.downloads.RetryFailed()
	if err != nil {
		return err
	}
	log.WithField("videos", queued).Info("failed videos reset to pending")

	if queued > 0 {
		drain(ctx, a)
	}
	return a.downloads.Shutdown(cfg.ShutdownTimeout)
}

// drain blocks until the queue is empty or ctx is done
func drain(ctx context.Context, a *app) {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		status := a.downloads.Status()
		if status.Queued == 0 && status.Active == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
