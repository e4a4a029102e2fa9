package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	AssetDir string `toml:"asset_dir"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	Language     string `toml:"language"`
	ImageBaseURL string `toml:"image_base_url"`
}

// RateLimit describes the TMDB request quota.
type RateLimit struct {
	WindowLimit          int    `toml:"window_limit"`
	LowWater             int    `toml:"low_water"`
	WindowSeconds        int    `toml:"window_seconds"`
	SuspendMarginSeconds int    `toml:"suspend_margin_seconds"`
	ProbePath            string `toml:"probe_path"`
}

// Fetch configures the retrying HTTP client used for TMDB.
type Fetch struct {
	MaxInFlight         int `toml:"max_in_flight"`
	RequestTimeout      int `toml:"request_timeout"`
	ThrottleMarginMilli int `toml:"throttle_margin_ms"`
	MaxThrottleRetries  int `toml:"max_throttle_retries"`
	EscalateAfter       int `toml:"escalate_after"`
}

// Enrich configures per-item enrichment.
type Enrich struct {
	MaxAttempts      int  `toml:"max_attempts"`
	QuotaMarginMilli int  `toml:"quota_margin_ms"`
	FieldLimit       int  `toml:"field_limit"`
	Secondary        bool `toml:"secondary"`
}

// OMDb contains configuration for the secondary metadata source.
type OMDb struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Translate configures the text transform applied to cast and crew fields.
type Translate struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	SourceLanguage string `toml:"source_language"`
	TargetLanguage string `toml:"target_language"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Batch sizes the worker pools.
type Batch struct {
	Workers         int `toml:"workers"`
	DeliveryWorkers int `toml:"delivery_workers"`
}

// Ledger selects the delivery ledger backend and files.
type Ledger struct {
	Backend    string `toml:"backend"`
	MoviesPath string `toml:"movies_path"`
	TVPath     string `toml:"tv_path"`
}

// Storage describes the file listing the movie and episode links come from.
type Storage struct {
	URL            string  `toml:"url"`
	MatchThreshold float64 `toml:"match_threshold"`
}

// Destination is one WordPress site records are published to. The URL is
// also the destination's ledger column.
type Destination struct {
	Name           string   `toml:"name"`
	URL            string   `toml:"url"`
	Username       string   `toml:"username"`
	Password       string   `toml:"password"`
	Tags           []string `toml:"tags"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for tmdbsync.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and downloaded image directories
//   - TMDB, RateLimit, Fetch: primary upstream access and its quota
//   - OMDb: secondary upstream used to fill episode details
//   - Translate: Yandex translation of cast and crew fields
//   - Enrich, Batch: per-item retry ceiling and worker pool sizes
//   - Ledger: which items were already published where
//   - Storage, Destinations: where links come from and where posts go
//   - Notifications, Logging: operator feedback
type Config struct {
	Paths         Paths         `toml:"paths"`
	TMDB          TMDB          `toml:"tmdb"`
	RateLimit     RateLimit     `toml:"rate_limit"`
	Fetch         Fetch         `toml:"fetch"`
	Enrich        Enrich        `toml:"enrich"`
	OMDb          OMDb          `toml:"omdb"`
	Translate     Translate     `toml:"translate"`
	Batch         Batch         `toml:"batch"`
	Ledger        Ledger        `toml:"ledger"`
	Storage       Storage       `toml:"storage"`
	Destinations  []Destination `toml:"destinations"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a sync run writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.AssetDir,
		filepath.Dir(c.Ledger.MoviesPath), filepath.Dir(c.Ledger.TVPath)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the ledger file for the given media kind ("movies" or "tv").
func (c *Config) LedgerPath(kind string) string {
	if kind == "tv" {
		return c.Ledger.TVPath
	}
	return c.Ledger.MoviesPath
}

// DestinationURLs lists the configured destination identifiers in order.
func (c *Config) DestinationURLs() []string {
	urls := make([]string, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		urls = append(urls, d.URL)
	}
	return urls
}

// FindDestination resolves a destination by name or URL. URLs match with or
// without the trailing slash.
func (c *Config) FindDestination(ref string) (Destination, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Destination{}, false
	}
	url := ref
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	for _, d := range c.Destinations {
		if d.Name == ref || d.URL == url {
			return d, true
		}
	}
	return Destination{}, false
}

// RateWindow returns the quota window as a duration.
func (r RateLimit) RateWindow() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// SuspendMargin returns the extra wait added after a quota exhaustion report.
func (r RateLimit) SuspendMargin() time.Duration {
	return time.Duration(r.SuspendMarginSeconds) * time.Second
}

// Timeout returns the per-attempt HTTP timeout.
func (f Fetch) Timeout() time.Duration {
	return time.Duration(f.RequestTimeout) * time.Second
}

// ThrottleMargin returns the pause added to every Retry-After hint.
func (f Fetch) ThrottleMargin() time.Duration {
	return time.Duration(f.ThrottleMarginMilli) * time.Millisecond
}

// QuotaMargin returns the pause added between enrichment attempts after a quota error.
func (e Enrich) QuotaMargin() time.Duration {
	return time.Duration(e.QuotaMarginMilli) * time.Millisecond
}

// TranslationEnabled reports whether cast and crew fields should be translated.
func (t Translate) TranslationEnabled() bool {
	target := strings.TrimSpace(t.TargetLanguage)
	return target != "" && !strings.EqualFold(target, t.SourceLanguage)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
