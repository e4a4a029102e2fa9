package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeRateLimit()
	c.normalizeOMDb()
	c.normalizeTranslate()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeDestinations()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		c.Paths.AssetDir = defaultAssetDir
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTMDB() {
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = strings.TrimSpace(value)
		}
	}
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.ImageBaseURL), "/")
	if c.TMDB.ImageBaseURL == "" {
		c.TMDB.ImageBaseURL = defaultTMDBImageBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
}

func (c *Config) normalizeRateLimit() {
	c.RateLimit.ProbePath = strings.TrimSpace(c.RateLimit.ProbePath)
	if c.RateLimit.ProbePath == "" {
		c.RateLimit.ProbePath = defaultProbePath
	}
	if !strings.HasPrefix(c.RateLimit.ProbePath, "/") {
		c.RateLimit.ProbePath = "/" + c.RateLimit.ProbePath
	}
}

func (c *Config) normalizeOMDb() {
	c.OMDb.APIKey = strings.TrimSpace(c.OMDb.APIKey)
	if c.OMDb.APIKey == "" {
		if value, ok := os.LookupEnv("OMDB_API_KEY"); ok {
			c.OMDb.APIKey = strings.TrimSpace(value)
		}
	}
	c.OMDb.BaseURL = strings.TrimSpace(c.OMDb.BaseURL)
	if c.OMDb.BaseURL == "" {
		c.OMDb.BaseURL = defaultOMDbBaseURL
	}
}

func (c *Config) normalizeTranslate() {
	c.Translate.APIKey = strings.TrimSpace(c.Translate.APIKey)
	if c.Translate.APIKey == "" {
		if value, ok := os.LookupEnv("YANDEX_API_KEY"); ok {
			c.Translate.APIKey = strings.TrimSpace(value)
		}
	}
	c.Translate.BaseURL = strings.TrimSpace(c.Translate.BaseURL)
	if c.Translate.BaseURL == "" {
		c.Translate.BaseURL = defaultTranslateBaseURL
	}
	c.Translate.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Translate.SourceLanguage))
	if c.Translate.SourceLanguage == "" {
		c.Translate.SourceLanguage = defaultSourceLanguage
	}
	c.Translate.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Translate.TargetLanguage))
}

func (c *Config) normalizeLedger() error {
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = defaultLedgerBackend
	}
	ext := ".csv"
	if c.Ledger.Backend == "sqlite" {
		ext = ".db"
	}
	if strings.TrimSpace(c.Ledger.MoviesPath) == "" {
		c.Ledger.MoviesPath = filepath.Join(c.Paths.DataDir, "movies"+ext)
	}
	if strings.TrimSpace(c.Ledger.TVPath) == "" {
		c.Ledger.TVPath = filepath.Join(c.Paths.DataDir, "tv"+ext)
	}
	var err error
	if c.Ledger.MoviesPath, err = expandPath(c.Ledger.MoviesPath); err != nil {
		return fmt.Errorf("ledger.movies_path: %w", err)
	}
	if c.Ledger.TVPath, err = expandPath(c.Ledger.TVPath); err != nil {
		return fmt.Errorf("ledger.tv_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.URL = strings.TrimSpace(c.Storage.URL)
	if c.Storage.URL != "" && !strings.HasSuffix(c.Storage.URL, "/") {
		c.Storage.URL += "/"
	}
	if c.Storage.MatchThreshold == 0 {
		c.Storage.MatchThreshold = defaultMatchThreshold
	}
}

func (c *Config) normalizeDestinations() {
	for i := range c.Destinations {
		d := &c.Destinations[i]
		d.URL = strings.TrimSpace(d.URL)
		if d.URL != "" && !strings.HasSuffix(d.URL, "/") {
			d.URL += "/"
		}
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			d.Name = d.URL
		}
		d.Username = strings.TrimSpace(d.Username)
		if d.RequestTimeout <= 0 {
			d.RequestTimeout = defaultDestinationTimeout
		}
		tags := d.Tags[:0]
		for _, tag := range d.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		d.Tags = tags
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
