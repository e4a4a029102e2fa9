package tmdb

import (
	"strconv"
	"strings"

	"tmdbsync/internal/services"
)

// SearchResult is a single search match.
type SearchResult struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// SearchResponse models the paginated search response.
type SearchResponse struct {
	Page         int            `json:"page"`
	Results      []SearchResult `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// First returns the provider's top-ranked result.
func (r *SearchResponse) First() (SearchResult, bool) {
	if r == nil || len(r.Results) == 0 {
		return SearchResult{}, false
	}
	return r.Results[0], true
}

// Named is the id/name pair used for genres and companies.
type Named struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Country is a production country.
type Country struct {
	ISO3166 string `json:"iso_3166_1"`
	Name    string `json:"name"`
}

type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

type CrewMember struct {
	Name       string `json:"name"`
	Department string `json:"department"`
	Job        string `json:"job"`
}

// Credits is the credits appendix.
type Credits struct {
	Cast       []CastMember `json:"cast"`
	Crew       []CrewMember `json:"crew"`
	GuestStars []CastMember `json:"guest_stars"`
}

type releaseDate struct {
	Certification string `json:"certification"`
	Type          int    `json:"type"`
}

type countryReleases struct {
	ISO3166      string        `json:"iso_3166_1"`
	ReleaseDates []releaseDate `json:"release_dates"`
}

// ReleaseDates is the release_dates appendix.
type ReleaseDates struct {
	Results []countryReleases `json:"results"`
}

// Certifications returns the non-empty certifications of the first release
// listed for country.
func (r ReleaseDates) Certifications(country string) []string {
	var out []string
	for _, res := range r.Results {
		if !strings.EqualFold(res.ISO3166, country) || len(res.ReleaseDates) == 0 {
			continue
		}
		if cert := strings.TrimSpace(res.ReleaseDates[0].Certification); cert != "" {
			out = append(out, cert)
		}
	}
	return out
}

// MovieDetails is /movie/{id} with credits and release_dates appended.
type MovieDetails struct {
	ID                  int          `json:"id"`
	IMDbID              string       `json:"imdb_id"`
	Title               string       `json:"title"`
	Overview            string       `json:"overview"`
	PosterPath          string       `json:"poster_path"`
	BackdropPath        string       `json:"backdrop_path"`
	ReleaseDate         string       `json:"release_date"`
	Runtime             int          `json:"runtime"`
	OriginalLanguage    string       `json:"original_language"`
	Homepage            string       `json:"homepage"`
	Genres              []Named      `json:"genres"`
	ProductionCompanies []Named      `json:"production_companies"`
	ProductionCountries []Country    `json:"production_countries"`
	Credits             Credits      `json:"credits"`
	ReleaseDates        ReleaseDates `json:"release_dates"`
}

// Year is the release year, or zero when the date is unusable.
func (m *MovieDetails) Year() int { return yearOf(m.ReleaseDate) }

// Validate requires an id, a title and a dated release.
func (m *MovieDetails) Validate() error {
	switch {
	case m.ID <= 0:
		return insufficient("movie details", "missing id")
	case strings.TrimSpace(m.Title) == "":
		return insufficient("movie details", "missing title")
	case m.Year() == 0:
		return insufficient("movie details", "missing release date")
	}
	return nil
}

// EpisodeDetails is /tv/{id}/season/{s}/episode/{e} with credits appended.
// Season appendices on TV details embed the same shape without credits.
type EpisodeDetails struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	Overview      string       `json:"overview"`
	StillPath     string       `json:"still_path"`
	AirDate       string       `json:"air_date"`
	SeasonNumber  int          `json:"season_number"`
	EpisodeNumber int          `json:"episode_number"`
	Runtime       int          `json:"runtime"`
	Crew          []CrewMember `json:"crew"`
	GuestStars    []CastMember `json:"guest_stars"`
	Credits       Credits      `json:"credits"`
}

// Year is the air year, or zero when the date is unusable.
func (e *EpisodeDetails) Year() int { return yearOf(e.AirDate) }

// Validate requires an id, a name and episode coordinates. Season zero is the
// specials season and is accepted.
func (e *EpisodeDetails) Validate() error {
	switch {
	case e.ID <= 0:
		return insufficient("episode details", "missing id")
	case strings.TrimSpace(e.Name) == "":
		return insufficient("episode details", "missing name")
	case e.SeasonNumber < 0 || e.EpisodeNumber <= 0:
		return insufficient("episode details", "missing season or episode number")
	}
	return nil
}

// SeasonSummary is an entry of the seasons list on TV details.
type SeasonSummary struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
}

// SeasonDetails is a season/{n} appendix.
type SeasonDetails struct {
	ID           int              `json:"id"`
	Name         string           `json:"name"`
	SeasonNumber int              `json:"season_number"`
	AirDate      string           `json:"air_date"`
	Episodes     []EpisodeDetails `json:"episodes"`
}

// TVDetails is /tv/{id} with credits and any requested season appendices.
type TVDetails struct {
	ID                  int             `json:"id"`
	Name                string          `json:"name"`
	Overview            string          `json:"overview"`
	FirstAirDate        string          `json:"first_air_date"`
	PosterPath          string          `json:"poster_path"`
	BackdropPath        string          `json:"backdrop_path"`
	OriginalLanguage    string          `json:"original_language"`
	EpisodeRunTime      []int           `json:"episode_run_time"`
	Genres              []Named         `json:"genres"`
	ProductionCompanies []Named         `json:"production_companies"`
	ProductionCountries []Country       `json:"production_countries"`
	Seasons             []SeasonSummary `json:"seasons"`
	Credits             Credits         `json:"credits"`

	// SeasonDetails holds decoded season/{n} appendices keyed by season number.
	SeasonDetails map[int]SeasonDetails `json:"-"`
}

// SeasonNumbers lists the seasons the show reports, in provider order.
func (t *TVDetails) SeasonNumbers() []int {
	out := make([]int, 0, len(t.Seasons))
	for _, s := range t.Seasons {
		out = append(out, s.SeasonNumber)
	}
	return out
}

// Validate requires an id and a name.
func (t *TVDetails) Validate() error {
	switch {
	case t.ID <= 0:
		return insufficient("tv details", "missing id")
	case strings.TrimSpace(t.Name) == "":
		return insufficient("tv details", "missing name")
	}
	return nil
}

func yearOf(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil || y <= 0 {
		return 0
	}
	return y
}

func insufficient(operation, message string) error {
	return services.Wrap(services.ErrInsufficientData, "tmdb", operation, message, nil)
}

// Names extracts names from id/name pairs, dropping blanks.
func Names(items []Named) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if n := strings.TrimSpace(it.Name); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// CountryNames extracts country names, dropping blanks.
func CountryNames(items []Country) []string {
	out := make([]string, 0, len(items))
	for _, c := range items {
		if n := strings.TrimSpace(c.Name); n != "" {
			out = append(out, n)
		}
	}
	return out
}
