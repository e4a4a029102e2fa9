// Package omdb reads the secondary metadata source used to fill episode and
// movie fields TMDB leaves empty. Lookups are best effort and are not
// rate limited.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tmdbsync/internal/fetch"
	"tmdbsync/internal/services"
)

// Types accepted by the type filter.
const (
	TypeMovie   = "movie"
	TypeSeries  = "series"
	TypeEpisode = "episode"
)

const notAvailable = "N/A"

// Executor runs fetch requests. *fetch.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// Client queries OMDb. The api key travels as the fetch client's auth values.
type Client struct {
	exec Executor
}

// New wraps exec.
func New(exec Executor) (*Client, error) {
	if exec == nil {
		return nil, errors.New("omdb executor required")
	}
	return &Client{exec: exec}, nil
}

// Query selects a title by name.
type Query struct {
	Title string
	Year  int
	Type  string
}

// Title is a movie, series, or episode record. OMDb returns every field as a
// string and uses "N/A" for missing values.
type Title struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Rated      string `json:"Rated"`
	Released   string `json:"Released"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Writer     string `json:"Writer"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Language   string `json:"Language"`
	Country    string `json:"Country"`
	Production string `json:"Production"`
	IMDbID     string `json:"imdbID"`
	Type       string `json:"Type"`
	SeriesID   string `json:"seriesID"`
	Season     string `json:"Season"`
	Episode    string `json:"Episode"`
}

// YearValue is the first year in Year ("2019" or "2011–2019").
func (t *Title) YearValue() int {
	y := strings.TrimSpace(t.Year)
	if len(y) < 4 {
		return 0
	}
	n, err := strconv.Atoi(y[:4])
	if err != nil {
		return 0
	}
	return n
}

// RuntimeMinutes parses "170 min".
func (t *Title) RuntimeMinutes() int {
	fields := strings.Fields(t.Runtime)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

func (t *Title) Genres() []string    { return splitList(t.Genre) }
func (t *Title) Countries() []string { return splitList(t.Country) }
func (t *Title) Languages() []string { return splitList(t.Language) }
func (t *Title) Companies() []string { return splitList(t.Production) }
func (t *Title) Directors() []string { return splitList(t.Director) }

// Writers drops the role suffixes OMDb attaches, e.g. "Jane Doe (story)".
func (t *Title) Writers() []string {
	names := splitList(t.Writer)
	for i, n := range names {
		if idx := strings.Index(n, " ("); idx > 0 {
			names[i] = n[:idx]
		}
	}
	return names
}

// Certification is the rating, or empty when unrated.
func (t *Title) Certification() string {
	r := strings.TrimSpace(t.Rated)
	if r == notAvailable || strings.EqualFold(r, "Not Rated") {
		return ""
	}
	return r
}

// SeasonEpisode is one row of a season catalog.
type SeasonEpisode struct {
	Title    string `json:"Title"`
	Released string `json:"Released"`
	Episode  string `json:"Episode"`
	IMDbID   string `json:"imdbID"`
}

// Season is the episode catalog of one season.
type Season struct {
	Title        string          `json:"Title"`
	Season       string          `json:"Season"`
	TotalSeasons string          `json:"totalSeasons"`
	Episodes     []SeasonEpisode `json:"Episodes"`
}

// Index maps episode numbers to episode ids. Catalogs are zero-based for some
// shows and one-based for others; the index keeps the provider's numbering.
func (s *Season) Index() map[int]string {
	out := make(map[int]string, len(s.Episodes))
	for _, ep := range s.Episodes {
		n, err := strconv.Atoi(strings.TrimSpace(ep.Episode))
		if err != nil || ep.IMDbID == "" {
			continue
		}
		out[n] = ep.IMDbID
	}
	return out
}

type envelope struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// Title looks a title up by name.
func (c *Client) Title(ctx context.Context, q Query) (*Title, error) {
	name := strings.TrimSpace(q.Title)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "omdb", "title", "title must not be empty", nil)
	}
	params := url.Values{}
	params.Set("t", name)
	if q.Year > 0 {
		params.Set("y", strconv.Itoa(q.Year))
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	var out Title
	if err := c.get(ctx, fetch.Search("", params), "title", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ByID looks a title up by IMDb id.
func (c *Client) ByID(ctx context.Context, imdbID string) (*Title, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, services.Wrap(services.ErrValidation, "omdb", "by id", "id must not be empty", nil)
	}
	params := url.Values{}
	params.Set("i", imdbID)
	var out Title
	if err := c.get(ctx, fetch.Lookup("", params), "by id", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Season fetches the episode catalog of a series season.
func (c *Client) Season(ctx context.Context, title string, season int) (*Season, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "omdb", "season", "title must not be empty", nil)
	}
	params := url.Values{}
	params.Set("t", title)
	params.Set("Season", strconv.Itoa(season))
	var out Season
	if err := c.get(ctx, fetch.Lookup("", params), "season", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, req fetch.Request, operation string, v any) error {
	res, err := c.exec.Execute(ctx, req)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(res.Body, &env); err != nil {
		return services.Wrap(services.ErrUpstream, "omdb", operation, "malformed response", err)
	}
	if strings.EqualFold(env.Response, "False") {
		return services.Wrap(services.ErrNotFound, "omdb", operation, fmt.Sprintf("%s: %s", req.Query().Encode(), env.Error), nil)
	}
	if err := res.Decode(v); err != nil {
		return services.Wrap(services.ErrUpstream, "omdb", operation, "malformed response", err)
	}
	return nil
}

func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" || value == notAvailable {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" && p != notAvailable {
			out = append(out, p)
		}
	}
	return out
}
