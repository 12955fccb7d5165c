package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConcurrencyEnv overrides download.concurrency when set
const ConcurrencyEnv = "YT_DL_WORKER_CONCURRENCY"

// Basic auth credentials override server.basic_auth_* when both are set
const (
	BasicAuthUsernameEnv = "BASIC_AUTH_USERNAME"
	BasicAuthPasswordEnv = "BASIC_AUTH_PASSWORD"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort        string `yaml:"server.port"`
	BasicAuthUsername string `yaml:"server.basic_auth_username"`
	BasicAuthPassword string `yaml:"server.basic_auth_password"`

	// Database configuration, "sqlite:<path>" or "memory:"
	DatabaseURL string `yaml:"database.url"`

	// Download configuration
	DownloadDir           string        `yaml:"download.dir"`
	DownloadConcurrency   int           `yaml:"download.concurrency"`
	ShutdownTimeout       time.Duration `yaml:"-"`
	ShutdownTimeoutStr    string        `yaml:"download.shutdown_timeout"`
	YtDlpPath             string        `yaml:"download.yt_dlp_path"`
	CookiesPath           string        `yaml:"download.cookies_path"`
	ArchiveFile           string        `yaml:"download.archive_file"`
	DefaultFormat         string        `yaml:"download.default_format"`
	MergeFormat           string        `yaml:"download.merge_format"`
	RestrictFilenames     bool          `yaml:"download.restrict_filenames"`
	EnumerateTimeout      time.Duration `yaml:"-"`
	EnumerateTimeoutStr   string        `yaml:"download.enumerate_timeout"`
	RecoverOnStart        bool          `yaml:"download.recover_on_start"`
	StartQueueOnBoot      bool          `yaml:"download.start_on_boot"`
	PartialFileExtensions []string      `yaml:"download.partial_extensions"`

	// Scheduler configuration
	SchedulerIntervalDays int  `yaml:"scheduler.interval_days"`
	SchedulerAutostart    bool `yaml:"scheduler.autostart"`

	// YouTube Data API configuration (fallback enumeration)
	YouTubeAPIKey     string `yaml:"youtube.api_key"`
	YouTubeQuotaFile  string `yaml:"youtube.quota_file"`
	YouTubeDailyQuota int    `yaml:"youtube.daily_quota"`

	// Performance tuning
	HTTPClientTimeout    time.Duration `yaml:"-"`
	HTTPClientTimeoutStr string        `yaml:"performance.http_client_timeout"`
	MaxIdleConns         int           `yaml:"performance.max_idle_conns"`
	MaxConnsPerHost      int           `yaml:"performance.max_conns_per_host"`

	// Logging configuration
	Logging Logging `yaml:"logging"`
}

// Logging configures log output and rotation
type Logging struct {
	Directory  string `yaml:"dir"`
	File       string `yaml:"file"`
	ErrorFile  string `yaml:"error_file"`
	MaxSize    int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Level      string `yaml:"level"`
}

// configFile represents the YAML structure
type configFile struct {
	Server struct {
		Port              string `yaml:"port"`
		BasicAuthUsername string `yaml:"basic_auth_username,omitempty"`
		BasicAuthPassword string `yaml:"basic_auth_password,omitempty"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Download struct {
		Dir               string   `yaml:"dir"`
		Concurrency       int      `yaml:"concurrency"`
		ShutdownTimeout   string   `yaml:"shutdown_timeout"`
		EnumerateTimeout  string   `yaml:"enumerate_timeout"`
		YtDlpPath         string   `yaml:"yt_dlp_path"`
		CookiesPath       string   `yaml:"cookies_path"`
		ArchiveFile       string   `yaml:"archive_file"`
		DefaultFormat     string   `yaml:"default_format"`
		MergeFormat       string   `yaml:"merge_format"`
		RestrictFilenames bool     `yaml:"restrict_filenames"`
		RecoverOnStart    *bool    `yaml:"recover_on_start"`
		StartOnBoot       *bool    `yaml:"start_on_boot"`
		PartialExtensions []string `yaml:"partial_extensions,omitempty"`
	} `yaml:"download"`
	Scheduler struct {
		IntervalDays int   `yaml:"interval_days"`
		Autostart    *bool `yaml:"autostart"`
	} `yaml:"scheduler"`
	YouTube struct {
		APIKey     string `yaml:"api_key"`
		QuotaFile  string `yaml:"quota_file"`
		DailyQuota int    `yaml:"daily_quota"`
	} `yaml:"youtube"`
	Performance struct {
		HTTPClientTimeout string `yaml:"http_client_timeout"`
		MaxIdleConns      int    `yaml:"max_idle_conns"`
		MaxConnsPerHost   int    `yaml:"max_conns_per_host"`
	} `yaml:"performance"`
	Logging Logging `yaml:"logging"`
}

// Manager handles configuration loading and saving
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = "config.yaml"
	}
	return &Manager{
		configPath: configPath,
	}
}

// Load reads configuration from YAML file, writing a default file when none exists.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m.createDefaultConfig()
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	m.config = cfg
	return cfg, nil
}

// Parse decodes YAML data, applies defaults and the environment override and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfgFile configFile
	if err := yaml.Unmarshal(data, &cfgFile); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}

	cfg := &Config{
		ServerPort:            cfgFile.Server.Port,
		BasicAuthUsername:     cfgFile.Server.BasicAuthUsername,
		BasicAuthPassword:     cfgFile.Server.BasicAuthPassword,
		DatabaseURL:           cfgFile.Database.URL,
		DownloadDir:           cfgFile.Download.Dir,
		DownloadConcurrency:   cfgFile.Download.Concurrency,
		ShutdownTimeoutStr:    cfgFile.Download.ShutdownTimeout,
		EnumerateTimeoutStr:   cfgFile.Download.EnumerateTimeout,
		YtDlpPath:             cfgFile.Download.YtDlpPath,
		CookiesPath:           cfgFile.Download.CookiesPath,
		ArchiveFile:           cfgFile.Download.ArchiveFile,
		DefaultFormat:         cfgFile.Download.DefaultFormat,
		MergeFormat:           cfgFile.Download.MergeFormat,
		RestrictFilenames:     cfgFile.Download.RestrictFilenames,
		RecoverOnStart:        boolOr(cfgFile.Download.RecoverOnStart, true),
		StartQueueOnBoot:      boolOr(cfgFile.Download.StartOnBoot, true),
		PartialFileExtensions: cfgFile.Download.PartialExtensions,
		SchedulerIntervalDays: cfgFile.Scheduler.IntervalDays,
		SchedulerAutostart:    boolOr(cfgFile.Scheduler.Autostart, true),
		YouTubeAPIKey:         cfgFile.YouTube.APIKey,
		YouTubeQuotaFile:      cfgFile.YouTube.QuotaFile,
		YouTubeDailyQuota:     cfgFile.YouTube.DailyQuota,
		HTTPClientTimeoutStr:  cfgFile.Performance.HTTPClientTimeout,
		MaxIdleConns:          cfgFile.Performance.MaxIdleConns,
		MaxConnsPerHost:       cfgFile.Performance.MaxConnsPerHost,
		Logging:               cfgFile.Logging,
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{
		RecoverOnStart:     true,
		StartQueueOnBoot:   true,
		SchedulerAutostart: true,
	}
	// defaults of an empty config never fail to parse
	_ = cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite:./data/archiver.db"
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "./downloads"
	}
	if cfg.DownloadConcurrency == 0 {
		cfg.DownloadConcurrency = 2
	}
	if cfg.ArchiveFile == "" {
		cfg.ArchiveFile = filepath.Join(cfg.DownloadDir, ".downloaded")
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "bv*[height<=1080][ext=mp4]+ba[ext=m4a]/b[height<=1080] / best"
	}
	if cfg.MergeFormat == "" {
		cfg.MergeFormat = "mp4"
	}
	if cfg.CookiesPath == "" {
		cfg.CookiesPath = "./data/cookies.txt"
	}
	if len(cfg.PartialFileExtensions) == 0 {
		cfg.PartialFileExtensions = []string{".part", ".ytdl", ".temp", ".part-Frag"}
	}
	if cfg.SchedulerIntervalDays == 0 {
		cfg.SchedulerIntervalDays = 7
	}
	if cfg.YouTubeQuotaFile == "" {
		cfg.YouTubeQuotaFile = "./data/quota.json"
	}
	if cfg.YouTubeDailyQuota == 0 {
		cfg.YouTubeDailyQuota = 10000
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 20
	}

	if cfg.Logging.Directory == "" {
		cfg.Logging.Directory = "./logs"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "app.log"
	}
	if cfg.Logging.ErrorFile == "" {
		cfg.Logging.ErrorFile = "app.error.log"
	}
	if cfg.Logging.MaxSize == 0 {
		cfg.Logging.MaxSize = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAge == 0 {
		cfg.Logging.MaxAge = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Parse durations
	var result *multierror.Error
	var err error
	if cfg.ShutdownTimeout, err = parseDuration(cfg.ShutdownTimeoutStr, 180*time.Second); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "download.shutdown_timeout"))
	}
	if cfg.EnumerateTimeout, err = parseDuration(cfg.EnumerateTimeoutStr, 10*time.Minute); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "download.enumerate_timeout"))
	}
	if cfg.HTTPClientTimeout, err = parseDuration(cfg.HTTPClientTimeoutStr, 30*time.Second); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "performance.http_client_timeout"))
	}
	cfg.ShutdownTimeoutStr = cfg.ShutdownTimeout.String()
	cfg.EnumerateTimeoutStr = cfg.EnumerateTimeout.String()
	cfg.HTTPClientTimeoutStr = cfg.HTTPClientTimeout.String()

	return result.ErrorOrNil()
}

func (cfg *Config) applyEnv() error {
	user, pass := os.Getenv(BasicAuthUsernameEnv), os.Getenv(BasicAuthPasswordEnv)
	if user != "" && pass != "" {
		cfg.BasicAuthUsername = user
		cfg.BasicAuthPassword = pass
	}

	raw := strings.TrimSpace(os.Getenv(ConcurrencyEnv))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", ConcurrencyEnv)
	}
	cfg.DownloadConcurrency = n
	return nil
}

// Validate reports every configuration problem at once
func (cfg *Config) Validate() error {
	var result *multierror.Error

	if cfg.DownloadConcurrency < 1 {
		result = multierror.Append(result, errors.Errorf("download.concurrency must be at least 1, got %d", cfg.DownloadConcurrency))
	}
	if cfg.SchedulerIntervalDays < 1 {
		result = multierror.Append(result, errors.Errorf("scheduler.interval_days must be at least 1, got %d", cfg.SchedulerIntervalDays))
	}
	if strings.TrimSpace(cfg.DownloadDir) == "" {
		result = multierror.Append(result, errors.New("download.dir must not be empty"))
	}
	if cfg.ShutdownTimeout <= 0 {
		result = multierror.Append(result, errors.New("download.shutdown_timeout must be positive"))
	}
	if cfg.YouTubeDailyQuota < 0 {
		result = multierror.Append(result, errors.New("youtube.daily_quota must not be negative"))
	}
	if (cfg.BasicAuthUsername == "") != (cfg.BasicAuthPassword == "") {
		result = multierror.Append(result, errors.New("server.basic_auth_username and server.basic_auth_password must be set together"))
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "memory:") && !strings.Contains(cfg.DatabaseURL, ":") {
		result = multierror.Append(result, errors.Errorf("database.url %q must use sqlite:<path> or memory:", cfg.DatabaseURL))
	}

	return result.ErrorOrNil()
}

// BasicAuthEnabled reports whether the API requires credentials
func (cfg *Config) BasicAuthEnabled() bool {
	return cfg.BasicAuthUsername != "" && cfg.BasicAuthPassword != ""
}

// IsMemoryDatabase reports whether the in-process store was selected
func (cfg *Config) IsMemoryDatabase() bool {
	return strings.HasPrefix(strings.TrimSpace(cfg.DatabaseURL), "memory:")
}

// Save writes configuration to YAML file
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveUnlocked(cfg)
}

// saveUnlocked persists config assuming caller already holds the write lock.
func (m *Manager) saveUnlocked(cfg *Config) error {
	var cfgFile configFile
	cfgFile.Server.Port = cfg.ServerPort
	cfgFile.Server.BasicAuthUsername = cfg.BasicAuthUsername
	cfgFile.Server.BasicAuthPassword = cfg.BasicAuthPassword
	cfgFile.Database.URL = cfg.DatabaseURL
	cfgFile.Download.Dir = cfg.DownloadDir
	cfgFile.Download.Concurrency = cfg.DownloadConcurrency
	cfgFile.Download.ShutdownTimeout = cfg.ShutdownTimeout.String()
	cfgFile.Download.EnumerateTimeout = cfg.EnumerateTimeout.String()
	cfgFile.Download.YtDlpPath = cfg.YtDlpPath
	cfgFile.Download.CookiesPath = cfg.CookiesPath
	cfgFile.Download.ArchiveFile = cfg.ArchiveFile
	cfgFile.Download.DefaultFormat = cfg.DefaultFormat
	cfgFile.Download.MergeFormat = cfg.MergeFormat
	cfgFile.Download.RestrictFilenames = cfg.RestrictFilenames
	cfgFile.Download.RecoverOnStart = &cfg.RecoverOnStart
	cfgFile.Download.StartOnBoot = &cfg.StartQueueOnBoot
	cfgFile.Scheduler.IntervalDays = cfg.SchedulerIntervalDays
	cfgFile.Scheduler.Autostart = &cfg.SchedulerAutostart
	cfgFile.YouTube.APIKey = cfg.YouTubeAPIKey
	cfgFile.YouTube.QuotaFile = cfg.YouTubeQuotaFile
	cfgFile.YouTube.DailyQuota = cfg.YouTubeDailyQuota
	cfgFile.Performance.HTTPClientTimeout = cfg.HTTPClientTimeout.String()
	cfgFile.Performance.MaxIdleConns = cfg.MaxIdleConns
	cfgFile.Performance.MaxConnsPerHost = cfg.MaxConnsPerHost
	cfgFile.Logging = cfg.Logging

	data, err := yaml.Marshal(&cfgFile)
	if err != nil {
		return errors.Wrap(err, "failed to marshal YAML")
	}

	if dir := filepath.Dir(m.configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create config directory")
		}
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	m.config = cfg
	return nil
}

// Get returns the current configuration (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// createDefaultConfig creates a default configuration file
func (m *Manager) createDefaultConfig() (*Config, error) {
	cfg := Default()
	if err := m.saveUnlocked(cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
