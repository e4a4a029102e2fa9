package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/fetch"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/omdb"
	"tmdbsync/internal/services"
	"tmdbsync/internal/tmdb"
	"tmdbsync/internal/translate"
)

const (
	defaultMaxAttempts = 25
	defaultQuotaMargin = 100 * time.Millisecond
)

// Primary is the TMDB surface the enricher uses. *tmdb.Client satisfies it.
type Primary interface {
	SearchMovie(ctx context.Context, query string, year int) (*tmdb.SearchResponse, error)
	SearchTV(ctx context.Context, query string, year int) (*tmdb.SearchResponse, error)
	MovieDetails(ctx context.Context, id int, language string) (*tmdb.MovieDetails, error)
	EpisodeDetails(ctx context.Context, showID, season, episode int, language string) (*tmdb.EpisodeDetails, error)
	TVDetails(ctx context.Context, id int, language string, seasons []int) (*tmdb.TVDetails, error)
	PosterURL(path string) string
	BackdropURL(path string) string
}

// Secondary is the OMDb surface the enricher uses. *omdb.Client satisfies it.
type Secondary interface {
	Title(ctx context.Context, q omdb.Query) (*omdb.Title, error)
	Season(ctx context.Context, title string, season int) (*omdb.Season, error)
	ByID(ctx context.Context, imdbID string) (*omdb.Title, error)
}

// Options configures an Enricher.
type Options struct {
	// Language is requested from TMDB for titles and overviews.
	Language    string
	MaxAttempts int
	QuotaMargin time.Duration
	// Secondary may be nil to skip the secondary step.
	Secondary Secondary
	// Transformer may be nil to skip translation.
	Transformer translate.Transformer
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Enricher resolves descriptors into records.
type Enricher struct {
	primary     Primary
	secondary   Secondary
	transformer translate.Transformer
	language    string
	maxAttempts int
	quotaMargin time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New builds an Enricher over primary.
func New(primary Primary, opts Options) *Enricher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.QuotaMargin < 0 {
		opts.QuotaMargin = defaultQuotaMargin
	}
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	return &Enricher{
		primary:     primary,
		secondary:   opts.Secondary,
		transformer: opts.Transformer,
		language:    opts.Language,
		maxAttempts: opts.MaxAttempts,
		quotaMargin: opts.QuotaMargin,
		clock:       opts.Clock,
		logger:      logging.NewComponentLogger(opts.Logger, "enrich"),
	}
}

// Enrich runs the four steps for d. Errors carry services.ErrNotFound or
// services.ErrInsufficientData when the item should be skipped; anything
// else is a failure.
func (e *Enricher) Enrich(ctx context.Context, d media.Descriptor) (*media.Record, error) {
	if key := d.Key(); !key.IsZero() {
		ctx = services.WithItemKey(ctx, key.String())
	}
	switch d.Kind {
	case media.KindMovie:
		return e.enrichMovie(ctx, d)
	case media.KindEpisode:
		return e.enrichEpisode(ctx, d)
	default:
		return nil, services.Wrap(services.ErrValidation, "enrich", "descriptor", fmt.Sprintf("unknown kind %q", d.Kind), nil)
	}
}

func (e *Enricher) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, e.logger)
}

// withQuotaRetry runs fn up to MaxAttempts times, retrying only while the
// quota is exhausted.
func withQuotaRetry[T any](ctx context.Context, e *Enricher, step string, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		out, err = fn()
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, services.ErrQuotaExceeded) || attempt == e.maxAttempts {
			break
		}
		wait, _ := fetch.IsRetryableQuota(err)
		wait += e.quotaMargin
		e.log(ctx).Info("quota exhausted; waiting before retry",
			logging.String(logging.FieldStage, step),
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.String(logging.FieldEventType, "enrich_quota_wait"),
		)
		if serr := e.clock.Sleep(ctx, wait); serr != nil {
			return out, serr
		}
	}
	return out, err
}

// warnSecondary logs a failed secondary lookup. Secondary failures never fail
// the item.
func (e *Enricher) warnSecondary(ctx context.Context, op string, err error) {
	logging.WarnWithContext(e.log(ctx), "secondary lookup failed", "secondary_lookup_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
		logging.String(logging.FieldImpact, "record published with primary data only"),
		logging.String(logging.FieldErrorHint, "check omdb api key and title spelling"),
	)
}

// transform translates the record's credits in place of the originals.
func (e *Enricher) transform(ctx context.Context, rec *media.Record) error {
	if e.transformer == nil {
		return nil
	}
	cast, err := translate.Cast(ctx, e.transformer, rec.Cast)
	if err != nil {
		return err
	}
	crew, err := translate.Crew(ctx, e.transformer, rec.Crew)
	if err != nil {
		return err
	}
	rec.Cast, rec.Crew = cast, crew
	return nil
}

func notFound(op, message string) error {
	return services.Wrap(services.ErrNotFound, "enrich", op, message, nil)
}

func castCredits(members []tmdb.CastMember) []media.Credit {
	out := make([]media.Credit, 0, len(members))
	for _, m := range members {
		out = append(out, media.Credit{Name: m.Name, Character: m.Character})
	}
	return out
}

func crewCredits(members []tmdb.CrewMember) []media.Credit {
	out := make([]media.Credit, 0, len(members))
	for _, m := range members {
		out = append(out, media.Credit{
			Name:            m.Name,
			Department:      m.Department,
			Job:             m.Job,
			DepartmentLabel: m.Department,
			JobLabel:        m.Job,
		})
	}
	return out
}

func yearsOf(y int) []int {
	if y <= 0 {
		return nil
	}
	return []int{y}
}
