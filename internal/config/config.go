// Package config loads process configuration from the environment and the
// media drive's global settings file (config/wrolpi.yaml).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds process settings. Load from env; call LoadEnvFile(".env")
// before Load() to use a .env file.
type Config struct {
	// Paths
	MediaPath string // media drive root, e.g. /media/wrolpi
	DBPath    string // sqlite file; default <media>/wrolpi.db

	// HTTP API
	HTTPAddr string // e.g. :8081

	// Download manager
	DownloadWorkers      int
	DownloadPollInterval time.Duration
	DownloadTimeout      time.Duration // per-download budget

	// Archives
	ArchiveFileFormat string // strftime-like name for new archives; "" = default
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		MediaPath:            getEnv("WROLPI_MEDIA_PATH", "/media/wrolpi"),
		DBPath:               os.Getenv("WROLPI_DB_PATH"),
		HTTPAddr:             getEnv("WROLPI_HTTP_ADDR", ":8081"),
		DownloadWorkers:      getEnvInt("WROLPI_DOWNLOAD_WORKERS", 4),
		DownloadPollInterval: getEnvDuration("WROLPI_DOWNLOAD_POLL", time.Second),
		DownloadTimeout:      getEnvDuration("WROLPI_DOWNLOAD_TIMEOUT", 10*time.Minute),
		ArchiveFileFormat:    os.Getenv("WROLPI_ARCHIVE_FILE_FORMAT"),
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.MediaPath, "wrolpi.db")
	}
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = 4
	}
	if c.DownloadPollInterval <= 0 {
		c.DownloadPollInterval = time.Second
	}
	return c
}

// ConfigDir is the mirrored-config directory on the media drive.
func (c *Config) ConfigDir() string { return filepath.Join(c.MediaPath, "config") }

// SettingsPath is the global settings file.
func (c *Config) SettingsPath() string { return filepath.Join(c.ConfigDir(), "wrolpi.yaml") }

// WROLFlagFile is the flag file whose presence enables WROL Mode.
func (c *Config) WROLFlagFile() string { return filepath.Join(c.ConfigDir(), "wrol_mode") }

// Settings are the global options persisted in config/wrolpi.yaml.
type Settings struct {
	Version            int      `yaml:"version"`
	DownloadOnStartup  bool     `yaml:"download_on_startup"`
	DownloadTimeout    int      `yaml:"download_timeout"` // seconds, 0 = process default
	ThrottleOnStartup  bool     `yaml:"throttle_on_startup"`
	IgnoredDirectories []string `yaml:"ignored_directories"`
}

// DefaultSettings returns the settings used before wrolpi.yaml exists.
func DefaultSettings() *Settings {
	return &Settings{DownloadOnStartup: true}
}

// ReadSettings loads the settings file. A missing file returns defaults.
func ReadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read settings")
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return s, nil
}

// WriteSettings atomically replaces the settings file, bumping its version.
func WriteSettings(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	s.Version++
	raw, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wrolpi.yaml.tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp settings")
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(raw)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return errors.Wrap(writeErr, "write settings")
		}
		return errors.Wrap(closeErr, "write settings")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace settings")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
