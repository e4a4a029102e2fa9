package media

import "strconv"

// Credit is one cast or crew entry. Department and Job keep the provider's
// English values so role lookups survive translation; the Label fields carry
// the translated text.
type Credit struct {
	Name            string
	Character       string
	Department      string
	Job             string
	DepartmentLabel string
	JobLabel        string
}

// Record is the normalized, translation-applied record delivered to sinks.
type Record struct {
	Kind        Kind
	TMDBID      int
	Title       string
	Overview    string
	PosterURL   string
	BackdropURL string
	Link        string
	Runtime     int
	Years       []int
	Genres      []string
	Countries   []string
	Languages   []string
	Companies   []string
	Producers   []string
	MPAA        []string
	Cast        []Credit
	Crew        []Credit

	// Episode fields.
	Show    string
	Season  int
	Episode int

	// LedgerKey pins the key the item was requested under, so a provider
	// title that differs from the input still dedups against the ledger.
	LedgerKey ItemKey
}

// Key returns the ledger key of the record.
func (r *Record) Key() ItemKey {
	if !r.LedgerKey.IsZero() {
		return r.LedgerKey
	}
	if r.Kind == KindEpisode {
		return EpisodeKey(r.Show, r.Season, r.Episode)
	}
	year := 0
	if len(r.Years) > 0 {
		year = r.Years[0]
	}
	return MovieKey(r.Title, year)
}

// DisplayTitle is the post title: the movie title or the episode line.
func (r *Record) DisplayTitle() string {
	if r.Kind == KindEpisode {
		return EpisodeLine(r.Show, r.Season, r.Episode)
	}
	return r.Title
}

// Series is "Show Season S" for episodes.
func (r *Record) Series() string {
	if r.Kind != KindEpisode {
		return ""
	}
	return r.Show + " Season " + strconv.Itoa(r.Season)
}

// Writers lists crew members from the Writing department.
func (r *Record) Writers() []string {
	return crewNames(r.Crew, func(c Credit) bool { return c.Department == "Writing" })
}

// Directors lists crew members whose job is Director.
func (r *Record) Directors() []string {
	return crewNames(r.Crew, func(c Credit) bool { return c.Job == "Director" })
}

// Actors lists cast member names in billing order.
func (r *Record) Actors() []string {
	return crewNames(r.Cast, func(Credit) bool { return true })
}

// ProductionCrew lists crew members from the Production department, falling
// back to Producers filled by a secondary source.
func (r *Record) ProductionCrew() []string {
	names := crewNames(r.Crew, func(c Credit) bool { return c.Department == "Production" })
	if len(names) == 0 {
		return append([]string(nil), r.Producers...)
	}
	return names
}

func crewNames(credits []Credit, keep func(Credit) bool) []string {
	var out []string
	seen := make(map[string]struct{}, len(credits))
	for _, c := range credits {
		if c.Name == "" || !keep(c) {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c.Name)
	}
	return out
}

// Limit truncates values to at most n entries; n <= 0 keeps everything.
func Limit[T any](values []T, n int) []T {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[:n]
}

// Fields holds the list-valued parts of a record as rendered for publishing.
type Fields struct {
	Writers   []string
	Directors []string
	Producers []string
	Actors    []string
	Companies []string
	Languages []string
	Countries []string
	Genres    []string
	MPAA      []string
	Years     []string
}

// Fields renders the list fields, each cut to limit entries (limit <= 0
// keeps all). Non-positive years are dropped.
func (r *Record) Fields(limit int) Fields {
	years := make([]string, 0, len(r.Years))
	for _, y := range r.Years {
		if y > 0 {
			years = append(years, strconv.Itoa(y))
		}
	}
	return Fields{
		Writers:   Limit(r.Writers(), limit),
		Directors: Limit(r.Directors(), limit),
		Producers: Limit(r.ProductionCrew(), limit),
		Actors:    Limit(r.Actors(), limit),
		Companies: Limit(r.Companies, limit),
		Languages: Limit(r.Languages, limit),
		Countries: Limit(r.Countries, limit),
		Genres:    Limit(r.Genres, limit),
		MPAA:      Limit(r.MPAA, limit),
		Years:     Limit(years, limit),
	}
}
