package enrich

import (
	"context"
	"fmt"

	"tmdbsync/internal/language"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/omdb"
	"tmdbsync/internal/tmdb"
)

func (e *Enricher) enrichMovie(ctx context.Context, d media.Descriptor) (*media.Record, error) {
	id, err := withQuotaRetry(ctx, e, "resolve", func() (int, error) {
		return e.resolveMovie(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	details, err := withQuotaRetry(ctx, e, "detail", func() (*tmdb.MovieDetails, error) {
		return e.primary.MovieDetails(ctx, id, e.language)
	})
	if err != nil {
		return nil, err
	}

	rec := e.movieRecord(d, details)
	if e.secondary != nil {
		e.fillMovieSecondary(ctx, rec, details)
	}
	if err := e.transform(ctx, rec); err != nil {
		return nil, err
	}
	e.log(ctx).Debug("movie enriched", logging.TMDBID(rec.TMDBID), logging.String("title", rec.Title))
	return rec, nil
}

// resolveMovie searches by title and year, then by title alone. The first
// result is taken as is.
func (e *Enricher) resolveMovie(ctx context.Context, d media.Descriptor) (int, error) {
	if d.TMDBID > 0 {
		return d.TMDBID, nil
	}
	resp, err := e.primary.SearchMovie(ctx, d.Title, d.Year)
	if err != nil {
		return 0, err
	}
	if first, ok := resp.First(); ok {
		return first.ID, nil
	}
	if d.Year > 0 {
		e.log(ctx).Info("no match with year; retrying search without year", logging.Int("year", d.Year))
		resp, err = e.primary.SearchMovie(ctx, d.Title, 0)
		if err != nil {
			return 0, err
		}
		if first, ok := resp.First(); ok {
			return first.ID, nil
		}
	}
	return 0, notFound("resolve", fmt.Sprintf("no TMDB match for %q", d.Title))
}

func (e *Enricher) movieRecord(d media.Descriptor, m *tmdb.MovieDetails) *media.Record {
	rec := &media.Record{
		Kind:        media.KindMovie,
		TMDBID:      m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		PosterURL:   e.primary.PosterURL(m.PosterPath),
		BackdropURL: e.primary.BackdropURL(m.BackdropPath),
		Link:        d.Link,
		Runtime:     m.Runtime,
		Years:       yearsOf(m.Year()),
		Genres:      tmdb.Names(m.Genres),
		Countries:   tmdb.CountryNames(m.ProductionCountries),
		Languages:   language.DisplayNames([]string{m.OriginalLanguage}),
		Companies:   tmdb.Names(m.ProductionCompanies),
		MPAA:        m.ReleaseDates.Certifications("US"),
		Cast:        castCredits(m.Credits.Cast),
		Crew:        crewCredits(m.Credits.Crew),
	}
	if d.Title != "" {
		rec.LedgerKey = d.Key()
	}
	return rec
}

func (e *Enricher) fillMovieSecondary(ctx context.Context, rec *media.Record, m *tmdb.MovieDetails) {
	var (
		title *omdb.Title
		err   error
	)
	if m.IMDbID != "" {
		title, err = e.secondary.ByID(ctx, m.IMDbID)
	} else {
		title, err = e.secondary.Title(ctx, omdb.Query{Title: m.Title, Year: m.Year(), Type: omdb.TypeMovie})
	}
	if err != nil {
		e.warnSecondary(ctx, "movie", err)
		return
	}
	if y := title.YearValue(); y > 0 && y != m.Year() {
		e.log(ctx).Debug("secondary year disagrees", logging.Int("primary", m.Year()), logging.Int("secondary", y))
	}
	if len(rec.MPAA) == 0 {
		if cert := title.Certification(); cert != "" {
			rec.MPAA = []string{cert}
		}
	}
	if len(rec.Companies) == 0 {
		rec.Companies = title.Companies()
	}
	if rec.Runtime == 0 {
		rec.Runtime = title.RuntimeMinutes()
	}
}
