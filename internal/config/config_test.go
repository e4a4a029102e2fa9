package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tmdbsync/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "test-key")
	t.Setenv("OMDB_API_KEY", "omdb-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "tmdbsync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Ledger.MoviesPath != filepath.Join(wantData, "movies.csv") {
		t.Fatalf("unexpected movies ledger: %q", cfg.Ledger.MoviesPath)
	}
	if cfg.Ledger.TVPath != filepath.Join(wantData, "tv.csv") {
		t.Fatalf("unexpected tv ledger: %q", cfg.Ledger.TVPath)
	}
	if cfg.TMDB.APIKey != "test-key" {
		t.Fatalf("expected TMDB key from env, got %q", cfg.TMDB.APIKey)
	}
	if cfg.OMDb.APIKey != "omdb-key" {
		t.Fatalf("expected OMDb key from env, got %q", cfg.OMDb.APIKey)
	}
	if cfg.RateLimit.WindowLimit != 38 || cfg.RateLimit.LowWater != 5 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.SuspendMargin() != 200*time.Second {
		t.Fatalf("unexpected suspend margin: %v", cfg.RateLimit.SuspendMargin())
	}
	if cfg.Fetch.MaxInFlight != 40 || cfg.Enrich.MaxAttempts != 25 {
		t.Fatalf("unexpected fetch/enrich defaults: %+v %+v", cfg.Fetch, cfg.Enrich)
	}
	if cfg.Translate.TranslationEnabled() {
		t.Fatal("translation should be disabled without a target language")
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TMDB_API_KEY", "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[tmdb]
api_key = "file-key"

[ledger]
backend = "sqlite"

[translate]
api_key = "ya-key"
target_language = "RU"

[storage]
url = "https://storage.example/movies"

[[destinations]]
url = "https://blog.example"
username = "editor"
password = "secret"
tags = ["watch", " "]
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected resolved %q to exist, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.TMDB.APIKey != "file-key" {
		t.Fatalf("unexpected api key %q", cfg.TMDB.APIKey)
	}
	if !strings.HasSuffix(cfg.Ledger.MoviesPath, "movies.db") {
		t.Fatalf("expected sqlite ledger path, got %q", cfg.Ledger.MoviesPath)
	}
	if cfg.Translate.TargetLanguage != "ru" || !cfg.Translate.TranslationEnabled() {
		t.Fatalf("expected normalized target language, got %q", cfg.Translate.TargetLanguage)
	}
	if cfg.Storage.URL != "https://storage.example/movies/" {
		t.Fatalf("expected trailing slash on storage url, got %q", cfg.Storage.URL)
	}
	if len(cfg.Destinations) != 1 {
		t.Fatalf("expected one destination, got %d", len(cfg.Destinations))
	}
	dest := cfg.Destinations[0]
	if dest.URL != "https://blog.example/" || dest.Name != dest.URL {
		t.Fatalf("unexpected destination normalization: %+v", dest)
	}
	if len(dest.Tags) != 1 || dest.Tags[0] != "watch" {
		t.Fatalf("expected blank tags dropped, got %v", dest.Tags)
	}
	if got := cfg.DestinationURLs(); len(got) != 1 || got[0] != "https://blog.example/" {
		t.Fatalf("unexpected destination urls %v", got)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing tmdb key", func(c *config.Config) { c.TMDB.APIKey = "" }, "tmdb.api_key"},
		{"low water above limit", func(c *config.Config) { c.RateLimit.LowWater = 50 }, "rate_limit.low_water"},
		{"zero workers", func(c *config.Config) { c.Batch.Workers = 0 }, "batch.workers"},
		{"bad language", func(c *config.Config) {
			c.Translate.TargetLanguage = "russian"
			c.Translate.APIKey = "k"
		}, "translate.target_language"},
		{"translate without key", func(c *config.Config) { c.Translate.TargetLanguage = "de" }, "translate.api_key"},
		{"bad backend", func(c *config.Config) { c.Ledger.Backend = "parquet" }, "ledger.backend"},
		{"destination without password", func(c *config.Config) {
			c.Destinations = []config.Destination{{URL: "https://a.example/", Username: "u"}}
		}, "requires username and password"},
		{"duplicate destination", func(c *config.Config) {
			d := config.Destination{URL: "https://a.example/", Username: "u", Password: "p"}
			c.Destinations = []config.Destination{d, d}
		}, "listed twice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.TMDB.APIKey = "key"
			cfg.Ledger.MoviesPath = "/tmp/movies.csv"
			cfg.Ledger.TVPath = "/tmp/tv.csv"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestValidateLanguageCode(t *testing.T) {
	for _, ok := range []string{"en", "ru", "de"} {
		if err := config.ValidateLanguageCode(ok); err != nil {
			t.Errorf("expected %q valid: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "eng", "r", "qq1"} {
		if err := config.ValidateLanguageCode(bad); err == nil {
			t.Errorf("expected %q invalid", bad)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.RateLimit.WindowLimit != 38 {
		t.Fatalf("unexpected sample window limit %d", cfg.RateLimit.WindowLimit)
	}
}

func TestFindDestinationByNameOrURL(t *testing.T) {
	cfg := config.Default()
	cfg.Destinations = []config.Destination{
		{Name: "main", URL: "https://a.example/"},
		{Name: "https://b.example/", URL: "https://b.example/"},
	}
	for _, ref := range []string{"main", "https://a.example", "https://a.example/", " main "} {
		d, ok := cfg.FindDestination(ref)
		if !ok || d.URL != "https://a.example/" {
			t.Errorf("FindDestination(%q) = %+v, %v", ref, d, ok)
		}
	}
	if _, ok := cfg.FindDestination("https://c.example"); ok {
		t.Error("unexpected match for unknown destination")
	}
	if _, ok := cfg.FindDestination(""); ok {
		t.Error("unexpected match for empty reference")
	}
}
