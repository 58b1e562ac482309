// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrConfiguration marks configuration problems that prevent startup:
// a missing credential, repository list, or required directory.
var ErrConfiguration = errors.New("configuration error")

// Config holds the application configuration loaded from environment variables.
// All paths are absolute once Load returns.
type Config struct {
	GitHubToken  string
	GitHubAPIURL string

	RootDir   string
	DataDir   string
	BuildDir  string
	RunDir    string
	ReposFile string
	DBPath    string

	PollInterval time.Duration
	RetryDelay   time.Duration
	APIRate      float64
	Workers      int

	IndexCommand []string
	IndexTimeout time.Duration

	ListenAddr string

	LogFile       string
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxBackups int

	AuthorName string
	Category   string
	License    string
}

// BuildRepoDir is the repository directory of the F-Droid build tree.
func (c *Config) BuildRepoDir() string { return filepath.Join(c.BuildDir, "repo") }

// BuildMetadataDir is the metadata directory of the F-Droid build tree.
func (c *Config) BuildMetadataDir() string { return filepath.Join(c.BuildDir, "metadata") }

// RunRepoDir is the directory served to clients.
func (c *Config) RunRepoDir() string { return filepath.Join(c.RunDir, "repo") }

// RunBackupDir holds the timestamped archives of previously served trees.
func (c *Config) RunBackupDir() string { return filepath.Join(c.RunDir, "backup") }

// DownloadDir is where artifacts land before they are merged.
func (c *Config) DownloadDir() string { return filepath.Join(c.DataDir, "downloads") }

// Load reads configuration from environment variables and returns a validated Config.
// AUTOPUBLISH_GITHUB_TOKEN (or GITHUB_TOKEN) is required. Every other variable
// is optional. Relative paths are resolved against AUTOPUBLISH_ROOT_DIR.
func Load() (*Config, error) {
	token := os.Getenv("AUTOPUBLISH_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("%w: AUTOPUBLISH_GITHUB_TOKEN or GITHUB_TOKEN must be set", ErrConfiguration)
	}

	rootDir, err := filepath.Abs(stringEnv("AUTOPUBLISH_ROOT_DIR", "."))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve AUTOPUBLISH_ROOT_DIR: %w", ErrConfiguration, err)
	}
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(rootDir, p)
	}

	dataDir := resolve(stringEnv("AUTOPUBLISH_DATA_DIR", "data"))

	cfg := &Config{
		GitHubToken:  token,
		GitHubAPIURL: os.Getenv("AUTOPUBLISH_GITHUB_API_URL"),
		RootDir:      rootDir,
		DataDir:      dataDir,
		BuildDir:     resolve(stringEnv("AUTOPUBLISH_BUILD_DIR", "build_environment/NidTestAppCenter")),
		RunDir:       resolve(stringEnv("AUTOPUBLISH_RUN_DIR", "run_environment")),
		ReposFile:    resolve(stringEnv("AUTOPUBLISH_REPOS_FILE", filepath.Join(dataDir, "supported_repos"))),
		DBPath:       resolve(stringEnv("AUTOPUBLISH_DB_PATH", filepath.Join(dataDir, "installed_versions.db"))),
		ListenAddr:   "127.0.0.1:8080",
		LogFile:      resolve(stringEnv("AUTOPUBLISH_LOG_FILE", "logs/autopublish.log")),
		LogLevel:     strings.ToLower(stringEnv("AUTOPUBLISH_LOG_LEVEL", "info")),
		AuthorName:   stringEnv("AUTOPUBLISH_AUTHOR_NAME", "Brady"),
		Category:     stringEnv("AUTOPUBLISH_CATEGORY", "TestAppCenter"),
		License:      stringEnv("AUTOPUBLISH_LICENSE", "proprietary"),
	}

	// An explicitly empty listen address disables the admin API.
	if v, ok := os.LookupEnv("AUTOPUBLISH_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if cfg.PollInterval, err = durationEnv("AUTOPUBLISH_POLL_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = durationEnv("AUTOPUBLISH_RETRY_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IndexTimeout, err = durationEnv("AUTOPUBLISH_INDEX_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Workers, err = intEnv("AUTOPUBLISH_WORKERS", 1); err != nil {
		return nil, err
	}
	if cfg.LogMaxSizeMB, err = intEnv("AUTOPUBLISH_LOG_MAX_SIZE_MB", 1); err != nil {
		return nil, err
	}
	if cfg.LogMaxBackups, err = intEnv("AUTOPUBLISH_LOG_MAX_BACKUPS", 10); err != nil {
		return nil, err
	}

	cfg.APIRate = 1
	if v, ok := os.LookupEnv("AUTOPUBLISH_API_RATE"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%w: AUTOPUBLISH_API_RATE has invalid value %q", ErrConfiguration, v)
		}
		cfg.APIRate = parsed
	}

	cfg.IndexCommand = strings.Fields(stringEnv("AUTOPUBLISH_INDEX_COMMAND", "fdroid update"))
	if len(cfg.IndexCommand) == 0 {
		return nil, fmt.Errorf("%w: AUTOPUBLISH_INDEX_COMMAND is empty", ErrConfiguration)
	}

	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"AUTOPUBLISH_POLL_INTERVAL", cfg.PollInterval},
		{"AUTOPUBLISH_RETRY_DELAY", cfg.RetryDelay},
		{"AUTOPUBLISH_INDEX_TIMEOUT", cfg.IndexTimeout},
	} {
		if d.value <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %s", ErrConfiguration, d.key, d.value)
		}
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: AUTOPUBLISH_WORKERS must be at least 1, got %d", ErrConfiguration, cfg.Workers)
	}

	return cfg, nil
}

// Preflight verifies the directory layout the pipeline depends on. The data
// directory and the build tree must already exist; the run directories are
// created when missing.
func (c *Config) Preflight() error {
	for _, dir := range []string{c.DataDir, c.BuildRepoDir(), c.BuildMetadataDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%w: required directory %s: %w", ErrConfiguration, dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrConfiguration, dir)
		}
	}

	for _, dir := range []string{c.RunRepoDir(), c.RunBackupDir(), c.DownloadDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %w", ErrConfiguration, dir, err)
		}
	}

	return nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s has invalid duration %q: %w", ErrConfiguration, key, v, err)
	}
	return parsed, nil
}

func intEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s has invalid integer %q: %w", ErrConfiguration, key, v, err)
	}
	return parsed, nil
}
