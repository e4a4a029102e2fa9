package config

const (
	defaultConfigPath           = "~/.config/tmdbsync/config.toml"
	projectConfigName           = "tmdbsync.toml"
	defaultDataDir              = "~/.local/share/tmdbsync"
	defaultLogDir               = "~/.local/share/tmdbsync/logs"
	defaultAssetDir             = "~/.cache/tmdbsync/images"
	defaultLogRetentionDays     = 60
	defaultTMDBLanguage         = "en-US"
	defaultTMDBBaseURL          = "https://api.themoviedb.org/3"
	defaultTMDBImageBaseURL     = "https://image.tmdb.org/t/p"
	defaultWindowLimit          = 38
	defaultLowWater             = 5
	defaultWindowSeconds        = 10
	defaultSuspendMarginSeconds = 200
	defaultProbePath            = "/movie/420818"
	defaultMaxInFlight          = 40
	defaultRequestTimeout       = 10
	defaultThrottleMarginMilli  = 1000
	defaultEscalateAfter        = 3
	defaultMaxAttempts          = 25
	defaultQuotaMarginMilli     = 100
	defaultOMDbBaseURL          = "https://www.omdbapi.com/"
	defaultTranslateBaseURL     = "https://translate.yandex.net/api/v1.5/tr.json/translate"
	defaultSourceLanguage       = "en"
	defaultWorkers              = 8
	defaultDeliveryWorkers      = 4
	defaultLedgerBackend        = "csv"
	defaultMatchThreshold       = 0.8
	defaultDestinationTimeout   = 15
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			AssetDir: defaultAssetDir,
		},
		TMDB: TMDB{
			Language:     defaultTMDBLanguage,
			BaseURL:      defaultTMDBBaseURL,
			ImageBaseURL: defaultTMDBImageBaseURL,
		},
		RateLimit: RateLimit{
			WindowLimit:          defaultWindowLimit,
			LowWater:             defaultLowWater,
			WindowSeconds:        defaultWindowSeconds,
			SuspendMarginSeconds: defaultSuspendMarginSeconds,
			ProbePath:            defaultProbePath,
		},
		Fetch: Fetch{
			MaxInFlight:         defaultMaxInFlight,
			RequestTimeout:      defaultRequestTimeout,
			ThrottleMarginMilli: defaultThrottleMarginMilli,
			EscalateAfter:       defaultEscalateAfter,
		},
		Enrich: Enrich{
			MaxAttempts:      defaultMaxAttempts,
			QuotaMarginMilli: defaultQuotaMarginMilli,
			Secondary:        true,
		},
		OMDb: OMDb{
			BaseURL:        defaultOMDbBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Translate: Translate{
			BaseURL:        defaultTranslateBaseURL,
			SourceLanguage: defaultSourceLanguage,
			RequestTimeout: defaultRequestTimeout,
		},
		Batch: Batch{
			Workers:         defaultWorkers,
			DeliveryWorkers: defaultDeliveryWorkers,
		},
		Ledger: Ledger{
			Backend: defaultLedgerBackend,
		},
		Storage: Storage{
			MatchThreshold: defaultMatchThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
