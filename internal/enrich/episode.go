package enrich

import (
	"context"
	"fmt"
	"strings"

	"tmdbsync/internal/language"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/omdb"
	"tmdbsync/internal/services"
	"tmdbsync/internal/tmdb"
)

// EpisodeIndex maps a season catalog's episode numbers to episode ids.
type EpisodeIndex map[int]string

// NewEpisodeIndex indexes a secondary season catalog.
func NewEpisodeIndex(season *omdb.Season) EpisodeIndex {
	if season == nil {
		return EpisodeIndex{}
	}
	return EpisodeIndex(season.Index())
}

// Resolve finds the id of a one-based episode number. A catalog holding an
// episode 0 is zero-based, so the number is shifted down by one first.
func (idx EpisodeIndex) Resolve(episode int) (string, bool) {
	if _, zeroBased := idx[0]; zeroBased {
		episode--
	}
	id, ok := idx[episode]
	return id, ok && id != ""
}

func (e *Enricher) enrichEpisode(ctx context.Context, d media.Descriptor) (*media.Record, error) {
	showID, err := withQuotaRetry(ctx, e, "resolve", func() (int, error) {
		return e.resolveShow(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	details, err := withQuotaRetry(ctx, e, "detail", func() (*tmdb.EpisodeDetails, error) {
		return e.primary.EpisodeDetails(ctx, showID, d.Season, d.Episode, e.language)
	})
	if err != nil {
		return nil, err
	}

	show := strings.TrimSpace(d.Title)
	rec := e.episodeRecord(show, details, details.Credits.Cast, details.Credits.Crew)
	rec.Link = d.Link
	rec.LedgerKey = d.Key()

	if e.secondary != nil {
		e.fillEpisodeSecondary(ctx, rec)
	}
	if err := e.transform(ctx, rec); err != nil {
		return nil, err
	}
	e.log(ctx).Debug("episode enriched", logging.TMDBID(rec.TMDBID), logging.String("title", rec.Title))
	return rec, nil
}

func (e *Enricher) resolveShow(ctx context.Context, d media.Descriptor) (int, error) {
	if d.TMDBID > 0 {
		return d.TMDBID, nil
	}
	resp, err := e.primary.SearchTV(ctx, d.Title, 0)
	if err != nil {
		return 0, err
	}
	first, ok := resp.First()
	if !ok {
		return 0, notFound("resolve", fmt.Sprintf("no TMDB match for show %q", d.Title))
	}
	return first.ID, nil
}

func (e *Enricher) episodeRecord(show string, ep *tmdb.EpisodeDetails, cast []tmdb.CastMember, crew []tmdb.CrewMember) *media.Record {
	return &media.Record{
		Kind:        media.KindEpisode,
		TMDBID:      ep.ID,
		Title:       ep.Name,
		Overview:    ep.Overview,
		PosterURL:   e.primary.PosterURL(ep.StillPath),
		BackdropURL: e.primary.BackdropURL(ep.StillPath),
		Runtime:     ep.Runtime,
		Years:       yearsOf(ep.Year()),
		Cast:        castCredits(cast),
		Crew:        crewCredits(crew),
		Show:        show,
		Season:      ep.SeasonNumber,
		Episode:     ep.EpisodeNumber,
	}
}

// fillEpisodeSecondary walks show, season catalog, and episode on the
// secondary source, overriding what the episode record holds.
func (e *Enricher) fillEpisodeSecondary(ctx context.Context, rec *media.Record) {
	show, err := e.secondary.Title(ctx, omdb.Query{Title: rec.Show, Type: omdb.TypeSeries})
	if err != nil {
		e.warnSecondary(ctx, "show", err)
		return
	}
	if companies := show.Companies(); len(companies) > 0 {
		rec.Companies = companies
	}

	season, err := e.secondary.Season(ctx, rec.Show, rec.Season)
	if err != nil {
		e.warnSecondary(ctx, "season", err)
		return
	}
	id, ok := NewEpisodeIndex(season).Resolve(rec.Episode)
	if !ok {
		e.warnSecondary(ctx, "episode index", services.Wrap(services.ErrNotFound, "enrich", "secondary",
			fmt.Sprintf("episode %d missing from season %d catalog", rec.Episode, rec.Season), nil))
		return
	}
	episode, err := e.secondary.ByID(ctx, id)
	if err != nil {
		e.warnSecondary(ctx, "episode", err)
		return
	}
	applyTitle(rec, episode)
}

func applyTitle(rec *media.Record, t *omdb.Title) {
	if y := t.YearValue(); y > 0 {
		rec.Years = []int{y}
	}
	if rt := t.RuntimeMinutes(); rt > 0 {
		rec.Runtime = rt
	}
	if v := t.Genres(); len(v) > 0 {
		rec.Genres = v
	}
	if v := t.Countries(); len(v) > 0 {
		rec.Countries = v
	}
	if v := t.Languages(); len(v) > 0 {
		rec.Languages = v
	}
	if v := t.Companies(); len(v) > 0 {
		rec.Companies = v
	}
}

// ExpandShow enriches every episode of every season of a show looked up by
// TMDB id. Show-level genres, countries, languages, companies and cast are
// shared across episodes; crew and guest stars are per episode.
func (e *Enricher) ExpandShow(ctx context.Context, showID int) ([]*media.Record, error) {
	ctx = services.WithItemKey(ctx, fmt.Sprintf("tv/%d", showID))

	base, err := withQuotaRetry(ctx, e, "detail", func() (*tmdb.TVDetails, error) {
		return e.primary.TVDetails(ctx, showID, e.language, nil)
	})
	if err != nil {
		return nil, err
	}
	seasons := base.SeasonNumbers()
	if len(seasons) == 0 {
		return nil, services.Wrap(services.ErrInsufficientData, "enrich", "expand show", "show lists no seasons", nil)
	}
	full, err := withQuotaRetry(ctx, e, "detail", func() (*tmdb.TVDetails, error) {
		return e.primary.TVDetails(ctx, showID, e.language, seasons)
	})
	if err != nil {
		return nil, err
	}

	shared := showDefaults(full)
	var secondaryShow *omdb.Title
	if e.secondary != nil {
		if secondaryShow, err = e.secondary.Title(ctx, omdb.Query{Title: full.Name, Type: omdb.TypeSeries}); err != nil {
			e.warnSecondary(ctx, "show", err)
			secondaryShow = nil
		}
	}
	if secondaryShow != nil {
		applyTitle(&shared, secondaryShow)
	}

	var cast []media.Credit
	if e.transformer != nil {
		// Show cast is shared by every episode, so it is translated once.
		tmp := &media.Record{Cast: castCredits(full.Credits.Cast)}
		if err := e.transform(ctx, tmp); err != nil {
			return nil, err
		}
		cast = tmp.Cast
	}

	var records []*media.Record
	for _, n := range seasons {
		season, ok := full.SeasonDetails[n]
		if !ok {
			continue
		}
		var index EpisodeIndex
		if secondaryShow != nil {
			catalog, err := e.secondary.Season(ctx, full.Name, n)
			if err != nil {
				e.warnSecondary(ctx, "season", err)
			} else {
				index = NewEpisodeIndex(catalog)
			}
		}
		for i := range season.Episodes {
			ep := &season.Episodes[i]
			if err := ep.Validate(); err != nil {
				e.log(ctx).Debug("skipping incomplete episode", logging.Int("season", n), logging.Error(err))
				continue
			}
			rec := e.episodeRecord(full.Name, ep, nil, ep.Crew)
			rec.Cast = castCredits(full.Credits.Cast)
			rec.Genres, rec.Countries, rec.Languages, rec.Companies = shared.Genres, shared.Countries, shared.Languages, shared.Companies
			if rec.Runtime == 0 {
				rec.Runtime = shared.Runtime
			}
			if id, ok := index.Resolve(ep.EpisodeNumber); ok {
				if t, err := e.secondary.ByID(ctx, id); err == nil {
					if y := t.YearValue(); y > 0 {
						rec.Years = []int{y}
					}
				} else {
					e.warnSecondary(ctx, "episode", err)
				}
			}
			if e.transformer != nil {
				rec.Cast = cast
				crew, err := translateCrew(ctx, e, rec.Crew)
				if err != nil {
					return nil, err
				}
				rec.Crew = crew
			}
			records = append(records, rec)
		}
	}
	e.log(ctx).Info("show expanded",
		logging.String("show", full.Name),
		logging.Int("seasons", len(seasons)),
		logging.Int("episodes", len(records)),
	)
	return records, nil
}

func translateCrew(ctx context.Context, e *Enricher, crew []media.Credit) ([]media.Credit, error) {
	tmp := &media.Record{Crew: crew}
	if err := e.transform(ctx, tmp); err != nil {
		return nil, err
	}
	return tmp.Crew, nil
}

// showDefaults collects the show-level fields episodes inherit.
func showDefaults(t *tmdb.TVDetails) media.Record {
	rec := media.Record{
		Genres:    tmdb.Names(t.Genres),
		Countries: tmdb.CountryNames(t.ProductionCountries),
		Languages: language.DisplayNames([]string{t.OriginalLanguage}),
		Companies: tmdb.Names(t.ProductionCompanies),
	}
	if len(t.EpisodeRunTime) > 0 {
		rec.Runtime = t.EpisodeRunTime[0]
	}
	return rec
}
