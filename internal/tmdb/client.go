package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tmdbsync/internal/fetch"
	"tmdbsync/internal/services"
)

// MaxAppendices is the provider's limit on append_to_response entries.
const MaxAppendices = 20

// Executor runs fetch requests. *fetch.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// Client provides typed access to the TMDB API.
type Client struct {
	exec     Executor
	language string
	images   string
}

// Option configures a Client.
type Option func(*Client)

// WithImageBaseURL overrides the image CDN root.
func WithImageBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimSpace(base); base != "" {
			c.images = strings.TrimRight(base, "/")
		}
	}
}

// New creates a TMDB client. language is the default response language and
// may be empty.
func New(exec Executor, language string, opts ...Option) (*Client, error) {
	if exec == nil {
		return nil, errors.New("tmdb executor required")
	}
	c := &Client{
		exec:     exec,
		language: strings.TrimSpace(language),
		images:   DefaultImageBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchMovie searches movies by title, filtered by primary release year when
// year is positive.
func (c *Client) SearchMovie(ctx context.Context, query string, year int) (*SearchResponse, error) {
	return c.search(ctx, "/search/movie", "primary_release_year", query, year)
}

// SearchTV searches shows by title, filtered by first air year when year is
// positive.
func (c *Client) SearchTV(ctx context.Context, query string, year int) (*SearchResponse, error) {
	return c.search(ctx, "/search/tv", "first_air_date_year", query, year)
}

func (c *Client) search(ctx context.Context, path, yearParam, query string, year int) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "search", "query must not be empty", nil)
	}
	params := c.params("")
	params.Set("query", query)
	params.Set("include_adult", "true")
	if year > 0 {
		params.Set(yearParam, strconv.Itoa(year))
	}
	var payload SearchResponse
	if err := c.get(ctx, fetch.Search(path, params), "search", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// MovieDetails fetches a movie with credits and release dates appended.
func (c *Client) MovieDetails(ctx context.Context, id int, language string) (*MovieDetails, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "movie details", "movie id must be positive", nil)
	}
	req := fetch.Detail(fmt.Sprintf("/movie/%d", id), c.params(language), "credits", "release_dates")
	var payload MovieDetails
	if err := c.get(ctx, req, "movie details", &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// EpisodeDetails fetches one episode with credits appended.
func (c *Client) EpisodeDetails(ctx context.Context, showID, season, episode int, language string) (*EpisodeDetails, error) {
	if showID <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "episode details", "show id must be positive", nil)
	}
	path := fmt.Sprintf("/tv/%d/season/%d/episode/%d", showID, season, episode)
	var payload EpisodeDetails
	if err := c.get(ctx, fetch.Detail(path, c.params(language), "credits"), "episode details", &payload); err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// TVDetails fetches a show with credits and the requested season appendices.
// Seasons are requested in chunks so no call exceeds MaxAppendices; the
// returned details merge every chunk.
func (c *Client) TVDetails(ctx context.Context, id int, language string, seasons []int) (*TVDetails, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, "tmdb", "tv details", "show id must be positive", nil)
	}
	var merged *TVDetails
	for _, chunk := range SeasonAppendices(seasons) {
		details, err := c.tvChunk(ctx, id, language, chunk)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = details
			continue
		}
		for n, s := range details.SeasonDetails {
			merged.SeasonDetails[n] = s
		}
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *Client) tvChunk(ctx context.Context, id int, language string, appendix []string) (*TVDetails, error) {
	req := fetch.Detail(fmt.Sprintf("/tv/%d", id), c.params(language), appendix...)
	res, err := c.exec.Execute(ctx, req)
	if err != nil {
		return nil, classify("tv details", err)
	}
	var payload TVDetails
	if err := res.Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "tmdb", "tv details", "malformed response", err)
	}
	var raw map[string]json.RawMessage
	if err := res.Decode(&raw); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "tmdb", "tv details", "malformed response", err)
	}
	payload.SeasonDetails = make(map[int]SeasonDetails)
	for key, body := range raw {
		num, ok := strings.CutPrefix(key, "season/")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		var season SeasonDetails
		if err := json.Unmarshal(body, &season); err != nil {
			return nil, services.Wrap(services.ErrUpstream, "tmdb", "tv details", "malformed "+key, err)
		}
		payload.SeasonDetails[n] = season
	}
	return &payload, nil
}

// SeasonAppendices splits the credits and season/N appendices into chunks of
// at most MaxAppendices entries. Credits ride on the first chunk.
func SeasonAppendices(seasons []int) [][]string {
	all := make([]string, 0, len(seasons)+1)
	all = append(all, "credits")
	for _, s := range seasons {
		all = append(all, "season/"+strconv.Itoa(s))
	}
	var chunks [][]string
	for len(all) > 0 {
		n := min(len(all), MaxAppendices)
		chunks = append(chunks, all[:n:n])
		all = all[n:]
	}
	return chunks
}

// PosterURL is the w185 image for path.
func (c *Client) PosterURL(path string) string { return ImageURL(c.images, PosterSize, path) }

// BackdropURL is the w780 image for path.
func (c *Client) BackdropURL(path string) string { return ImageURL(c.images, BackdropSize, path) }

func (c *Client) params(language string) url.Values {
	params := url.Values{}
	if language = strings.TrimSpace(language); language == "" {
		language = c.language
	}
	if language != "" {
		params.Set("language", language)
	}
	return params
}

func (c *Client) get(ctx context.Context, req fetch.Request, operation string, v any) error {
	res, err := c.exec.Execute(ctx, req)
	if err != nil {
		return classify(operation, err)
	}
	if err := res.Decode(v); err != nil {
		return services.Wrap(services.ErrUpstream, "tmdb", operation, "malformed response", err)
	}
	return nil
}

// classify maps a 404 onto ErrNotFound and leaves every other error chain
// untouched.
func classify(operation string, err error) error {
	var upstream *fetch.UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound {
		return services.Wrap(services.ErrNotFound, "tmdb", operation, "no such resource", err)
	}
	return err
}
