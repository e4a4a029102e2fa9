package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateTranslate(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateDestinations(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'tmdbsync config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if err := ensurePositiveMap(map[string]int{
		"rate_limit.window_limit":   c.RateLimit.WindowLimit,
		"rate_limit.window_seconds": c.RateLimit.WindowSeconds,
	}); err != nil {
		return err
	}
	if c.RateLimit.LowWater < 0 || c.RateLimit.LowWater >= c.RateLimit.WindowLimit {
		return errors.New("rate_limit.low_water must be >= 0 and below rate_limit.window_limit")
	}
	if c.RateLimit.SuspendMarginSeconds < 0 {
		return errors.New("rate_limit.suspend_margin_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if err := ensurePositiveMap(map[string]int{
		"fetch.max_in_flight":           c.Fetch.MaxInFlight,
		"fetch.request_timeout":         c.Fetch.RequestTimeout,
		"enrich.max_attempts":           c.Enrich.MaxAttempts,
		"batch.workers":                 c.Batch.Workers,
		"batch.delivery_workers":        c.Batch.DeliveryWorkers,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	for key, value := range map[string]int{
		"fetch.throttle_margin_ms":   c.Fetch.ThrottleMarginMilli,
		"fetch.max_throttle_retries": c.Fetch.MaxThrottleRetries,
		"fetch.escalate_after":       c.Fetch.EscalateAfter,
		"enrich.quota_margin_ms":     c.Enrich.QuotaMarginMilli,
		"enrich.field_limit":         c.Enrich.FieldLimit,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}

func (c *Config) validateTranslate() error {
	for key, value := range map[string]string{
		"translate.source_language": c.Translate.SourceLanguage,
		"translate.target_language": c.Translate.TargetLanguage,
	} {
		if value == "" || value == "auto" {
			continue
		}
		if err := ValidateLanguageCode(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.Translate.TranslationEnabled() && c.Translate.APIKey == "" {
		return errors.New("translate.api_key is required when translate.target_language is set (or set YANDEX_API_KEY)")
	}
	return nil
}

// ValidateLanguageCode accepts two-letter ISO 639-1 codes only.
func ValidateLanguageCode(code string) error {
	code = strings.TrimSpace(code)
	if len(code) != 2 {
		return fmt.Errorf("language %q is not a two-letter ISO 639-1 code", code)
	}
	base, err := language.ParseBase(code)
	if err != nil {
		return fmt.Errorf("language %q is not a valid ISO 639-1 code", code)
	}
	if base.String() != strings.ToLower(code) {
		return fmt.Errorf("language %q is not a canonical ISO 639-1 code (use %q)", code, base.String())
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Backend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("ledger.backend: unsupported value %q (use csv or sqlite)", c.Ledger.Backend)
	}
	if c.Ledger.MoviesPath == c.Ledger.TVPath {
		return errors.New("ledger.movies_path and ledger.tv_path must differ")
	}
	return nil
}

func (c *Config) validateDestinations() error {
	seen := make(map[string]struct{}, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.URL == "" {
			return fmt.Errorf("destinations[%d].url must be set", i)
		}
		if !strings.HasPrefix(d.URL, "http://") && !strings.HasPrefix(d.URL, "https://") {
			return fmt.Errorf("destinations[%d].url must be an http(s) URL", i)
		}
		if d.Username == "" || d.Password == "" {
			return fmt.Errorf("destinations[%d] (%s) requires username and password", i, d.Name)
		}
		key := strings.ToLower(d.URL)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("destinations[%d].url %s is listed twice", i, d.URL)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
