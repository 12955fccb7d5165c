package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"yt_archiver/config"
	"yt_archiver/internal/delivery/cron"
	"yt_archiver/internal/delivery/httpapi"
	"yt_archiver/internal/logger"
)

type Opts struct {
	ConfigPath string `long:"config" short:"c" default:"config.yaml" env:"YTA_CONFIG_PATH" description:"path to the YAML configuration"`
	Debug      bool   `long:"debug" description:"enable debug logging"`
}

var (
	version = "dev"
	commit  = "none"
)

func main() {
	opts := Opts{}
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.AddCommand(
		"retry-failed",
		"Retry failed downloads",
		"Resets every failed video to pending, removes it from the download archive and downloads it again before exiting.",
		&retryFailedCommand{opts: &opts},
	); err != nil {
		log.WithError(err).Fatal("failed to register command")
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
	if parser.Active != nil {
		// a sub-command already ran
		return
	}

	if err := serve(opts); err != nil {
		log.WithError(err).Fatal("archiver stopped with error")
	}
}

func loadConfig(opts Opts) (*config.Config, error) {
	cfg, err := config.NewManager(opts.ConfigPath).Load()
	if err != nil {
		return nil, err
	}
	if _, err := logger.Initialize(cfg.Logging, opts.Debug); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(opts Opts) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := logger.Close(); err != nil {
			log.WithError(err).Error("failed to close log files")
		}
	}()

	log.WithFields(log.Fields{
		"version": version,
		"commit":  commit,
		"config":  opts.ConfigPath,
	}).Info("running yt archiver")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.RecoverOnStart {
		if _, err := a.downloads.RecoverInterrupted(); err != nil {
			return err
		}
	}
	if cfg.StartQueueOnBoot {
		if err := a.downloads.Start(); err != nil {
			return err
		}
	}

	scheduler := cron.NewScheduler(a.repos.channels, a.downloads, a.channels, cfg.SchedulerIntervalDays)
	if cfg.SchedulerAutostart {
		if err := scheduler.Start(); err != nil {
			return err
		}
	}

	srv := httpapi.NewServer(cfg, a.channels, a.downloads, scheduler)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return srv.ListenAndServe()
	})

	group.Go(func() error {
		select {
		case <-ctx.Done():
		case sig := <-stop:
			log.WithField("signal", sig).Info("shutting down")
		}
		cancel()

		scheduler.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown failed")
		}

		return a.downloads.Shutdown(cfg.ShutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("gracefully stopped")
	return nil
}
