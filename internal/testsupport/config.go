package testsupport

import (
	"path/filepath"
	"testing"

	"tmdbsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.TMDB.APIKey = "test"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.AssetDir = filepath.Join(base, "images")
	cfg.Ledger.MoviesPath = filepath.Join(base, "data", "movies.csv")
	cfg.Ledger.TVPath = filepath.Join(base, "data", "tv.csv")
	cfg.Fetch.ThrottleMarginMilli = 0
	cfg.Enrich.QuotaMarginMilli = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithTMDB points the config at a test server.
func WithTMDB(baseURL string) ConfigOption {
	return func(c *config.Config) {
		c.TMDB.BaseURL = baseURL
		c.TMDB.ImageBaseURL = baseURL + "/img"
	}
}

// WithOMDb enables the secondary source against a test server.
func WithOMDb(baseURL string) ConfigOption {
	return func(c *config.Config) {
		c.OMDb.APIKey = "omdb-test"
		c.OMDb.BaseURL = baseURL
	}
}

// WithDestination appends a destination with test credentials.
func WithDestination(url string) ConfigOption {
	return func(c *config.Config) {
		c.Destinations = append(c.Destinations, config.Destination{
			Name:           url,
			URL:            url,
			Username:       "editor",
			Password:       "secret",
			RequestTimeout: 5,
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
