package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"yt_archiver/config"
)

// Manager owns the application logger and its rotating files.
type Manager struct {
	logger    *log.Logger
	output    *lumberjack.Logger
	errorFile *lumberjack.Logger
}

var global *Manager

// Initialize configures the global logger manager.
// The logrus standard logger is pointed at the same outputs.
func Initialize(cfg config.Logging, debug bool) (*Manager, error) {
	manager, err := New(cfg, debug)
	if err != nil {
		return nil, err
	}
	global = manager

	std := log.StandardLogger()
	std.SetOutput(manager.logger.Out)
	std.SetLevel(manager.logger.GetLevel())
	std.SetFormatter(manager.logger.Formatter)
	std.ReplaceHooks(manager.logger.Hooks)
	return manager, nil
}

// New creates a new Manager instance.
func New(cfg config.Logging, debug bool) (*Manager, error) {
	dir := cfg.Directory
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}

	outputFile := cfg.File
	if outputFile == "" {
		outputFile = "app.log"
	}
	errorFile := cfg.ErrorFile
	if errorFile == "" {
		errorFile = "app.error.log"
	}

	rotate := func(name string) *lumberjack.Logger {
		return &lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	}

	manager := &Manager{
		logger:    log.New(),
		output:    rotate(outputFile),
		errorFile: rotate(errorFile),
	}

	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid logging.level %q", cfg.Level)
		}
		level = parsed
	}
	if debug {
		level = log.DebugLevel
	}

	manager.logger.SetLevel(level)
	manager.logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	manager.logger.SetOutput(io.MultiWriter(os.Stdout, manager.output))
	manager.logger.AddHook(&errorHook{writer: manager.errorFile, formatter: &log.JSONFormatter{TimestampFormat: time.RFC3339}})

	return manager, nil
}

// Log returns the managed logger.
func (m *Manager) Log() *log.Logger {
	return m.logger
}

// Close releases file handles.
func (m *Manager) Close() error {
	var firstErr error
	if m.output != nil {
		if err := m.output.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.errorFile != nil {
		if err := m.errorFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the global logger manager if initialized.
func Close() error {
	if global == nil {
		return nil
	}
	err := global.Close()
	global = nil

	std := log.StandardLogger()
	std.SetOutput(os.Stderr)
	std.ReplaceHooks(make(log.LevelHooks))
	return err
}

// errorHook copies warnings and errors into a separate file.
type errorHook struct {
	writer    io.Writer
	formatter log.Formatter
}

func (h *errorHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel}
}

func (h *errorHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
