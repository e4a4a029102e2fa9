package syncrun

import (
	"net/http"
	"net/url"
	"time"

	"tmdbsync/internal/delivery"
	"tmdbsync/internal/delivery/wordpress"
	"tmdbsync/internal/fetch"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/omdb"
	"tmdbsync/internal/ratelimit"
	"tmdbsync/internal/services"
	"tmdbsync/internal/tmdb"
	"tmdbsync/internal/translate"
)

func (r *Runner) wire() error {
	cfg := r.cfg

	prober := tmdb.NewProber(r.httpDoer(cfg.Fetch.Timeout()), cfg.TMDB.BaseURL, cfg.RateLimit.ProbePath, cfg.TMDB.APIKey, r.clock)
	r.limiter = ratelimit.New(ratelimit.Config{
		Limit:         cfg.RateLimit.WindowLimit,
		LowWater:      cfg.RateLimit.LowWater,
		Window:        cfg.RateLimit.RateWindow(),
		SuspendMargin: cfg.RateLimit.SuspendMargin(),
	}, ratelimit.WithClock(r.clock), ratelimit.WithProber(prober), ratelimit.WithLogger(r.baseLogger))

	tmdbFetch := fetch.New(fetch.Options{
		Name:        "tmdb",
		BaseURL:     cfg.TMDB.BaseURL,
		Auth:        url.Values{"api_key": {cfg.TMDB.APIKey}},
		MaxInFlight: int64(cfg.Fetch.MaxInFlight),
		Timeout:     cfg.Fetch.Timeout(),
		Policy: fetch.ThrottlePolicy{
			Margin:        cfg.Fetch.ThrottleMargin(),
			MaxRetries:    cfg.Fetch.MaxThrottleRetries,
			EscalateAfter: cfg.Fetch.EscalateAfter,
			Fallback:      time.Second,
		},
		Gate:   r.limiter,
		Doer:   r.doer,
		Clock:  r.clock,
		Logger: r.baseLogger,
	})
	primary, err := tmdb.New(tmdbFetch, cfg.TMDB.Language, tmdb.WithImageBaseURL(cfg.TMDB.ImageBaseURL))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "syncrun", "tmdb", "build client", err)
	}
	r.primary = primary

	if cfg.Enrich.Secondary && cfg.OMDb.APIKey != "" {
		omdbFetch := fetch.New(fetch.Options{
			Name:    "omdb",
			BaseURL: cfg.OMDb.BaseURL,
			Auth:    url.Values{"apikey": {cfg.OMDb.APIKey}},
			Timeout: seconds(cfg.OMDb.RequestTimeout),
			Doer:    r.doer,
			Clock:   r.clock,
			Logger:  r.baseLogger,
		})
		secondary, err := omdb.New(omdbFetch)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "syncrun", "omdb", "build client", err)
		}
		r.secondary = secondary
	}

	r.assets = delivery.NewAssetCache(cfg.Paths.AssetDir, delivery.AssetOptions{
		Doer:   r.doer,
		Clock:  r.clock,
		Logger: r.baseLogger,
	})

	if r.sinks != nil {
		return nil
	}
	for _, dest := range cfg.Destinations {
		sink, err := wordpress.New(wordpress.Options{
			Name:       dest.URL,
			URL:        dest.URL,
			Username:   dest.Username,
			Password:   dest.Password,
			Tags:       dest.Tags,
			FieldLimit: cfg.Enrich.FieldLimit,
			Timeout:    seconds(dest.RequestTimeout),
			Assets:     r.assets,
			Doer:       r.doer,
			Clock:      r.clock,
			Logger:     r.baseLogger,
		})
		if err != nil {
			return err
		}
		r.sinks = append(r.sinks, sink)
	}
	return nil
}

// transformerFor builds the credit translator for one run. A job language
// replaces translate.target_language so TMDB text and translated credits
// agree; nil means credits stay as TMDB returned them.
func (r *Runner) transformerFor(jobLanguage string) (translate.Transformer, error) {
	cfg := r.cfg.Translate
	target := cfg.TargetLanguage
	if jobLanguage != "" {
		target = translate.BaseLanguage(jobLanguage)
	}
	if !translate.NeedsTranslation(cfg.SourceLanguage, target) {
		return nil, nil
	}
	if cfg.APIKey == "" {
		logging.WarnWithContext(r.logger, "credits left untranslated", "translate_key_missing",
			logging.String("target_language", target),
		)
		return nil, nil
	}
	yandex, err := translate.NewYandex(translate.YandexOptions{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Source:  cfg.SourceLanguage,
		Target:  target,
		Timeout: seconds(cfg.RequestTimeout),
		Doer:    r.doer,
		Logger:  r.baseLogger,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "syncrun", "translate", "build transformer", err)
	}
	return yandex, nil
}

// httpDoer returns the injected doer or a client bounded by timeout.
func (r *Runner) httpDoer(timeout time.Duration) fetch.Doer {
	if r.doer != nil {
		return r.doer
	}
	return &http.Client{Timeout: timeout}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
