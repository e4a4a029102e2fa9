package listing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmdbsync/internal/listing"
	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

func TestParseMovieLine(t *testing.T) {
	tests := []struct {
		line  string
		title string
		year  int
	}{
		{"Heat 1995", "Heat", 1995},
		{"Heat (1995)", "Heat", 1995},
		{"  The   Matrix 1999 ", "The Matrix", 1999},
		{"2001 A Space Odyssey 1968", "2001 A Space Odyssey", 1968},
		{"Amélie", "Amélie", 0},
		{"1917", "1917", 0},
		{"Heat [1995]", "Heat", 1995},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			d, err := listing.ParseMovieLine(tt.line)
			if err != nil {
				t.Fatalf("ParseMovieLine: %v", err)
			}
			if d.Kind != media.KindMovie || d.Title != tt.title || d.Year != tt.year {
				t.Fatalf("got %+v, want %q %d", d, tt.title, tt.year)
			}
		})
	}

	if _, err := listing.ParseMovieLine("   "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank line, got %v", err)
	}
}

func TestParseEpisodeLine(t *testing.T) {
	d, err := listing.ParseEpisodeLine("The Office Season 2 Episode 13")
	if err != nil {
		t.Fatalf("ParseEpisodeLine: %v", err)
	}
	if d.Title != "The Office" || d.Season != 2 || d.Episode != 13 || d.Kind != media.KindEpisode {
		t.Fatalf("unexpected descriptor %+v", d)
	}
	if got := d.Key().String(); got != "The Office Season 2 Episode 13" {
		t.Fatalf("key = %q", got)
	}

	for _, bad := range []string{"The Office", "Season 1 Episode 2", "Show Season x Episode 1"} {
		if _, err := listing.ParseEpisodeLine(bad); !errors.Is(err, services.ErrValidation) {
			t.Errorf("ParseEpisodeLine(%q) err = %v, want validation error", bad, err)
		}
	}
}

func TestParseStorageNames(t *testing.T) {
	movie, ok := listing.ParseStorageMovie("The.Matrix.1999.1080p.BluRay.mkv")
	if !ok || movie.Title != "The Matrix" || movie.Year != 1999 {
		t.Fatalf("storage movie = %+v, %v", movie, ok)
	}

	noYear, ok := listing.ParseStorageMovie("Some.Movie.Name.720p.x264.mkv")
	if !ok || noYear.Title != "Some Movie Name" || noYear.Year != 0 {
		t.Fatalf("storage movie without year = %+v, %v", noYear, ok)
	}

	escaped, ok := listing.ParseStorageMovie("Am%C3%A9lie.2001.mkv")
	if !ok || escaped.Title != "Amélie" || escaped.Year != 2001 {
		t.Fatalf("escaped storage movie = %+v, %v", escaped, ok)
	}

	lower, ok := listing.ParseStorageMovie("the.dark.knight.2008.mkv")
	if !ok || lower.Title != "The Dark Knight" || lower.Year != 2008 {
		t.Fatalf("lower-case name = %+v, %v", lower, ok)
	}

	ep, ok := listing.ParseStorageEpisode("The.Office.Season.2.Episode.13.720p.mkv")
	if !ok || ep.Title != "The Office" || ep.Season != 2 || ep.Episode != 13 {
		t.Fatalf("storage episode = %+v, %v", ep, ok)
	}
	if _, ok := listing.ParseStorageEpisode("The.Office.S02E13.mkv"); ok {
		t.Fatal("expected non-matching name to be rejected")
	}
}

func TestParseEpisodesReportsRejectedLines(t *testing.T) {
	eps, rejected := listing.ParseEpisodes([]string{
		"Show Season 1 Episode 1",
		"show season 1 episode 1",
		"garbage",
		"Show Season 1 Episode 2",
	})
	if len(eps) != 2 {
		t.Fatalf("expected duplicates dropped, got %d episodes", len(eps))
	}
	if len(rejected) != 1 || rejected[0] != "garbage" {
		t.Fatalf("rejected = %v", rejected)
	}

	movies := listing.ParseMovies([]string{"Heat 1995", "HEAT 1995", "Alien 1979"})
	if len(movies) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(movies))
	}
}

const directoryIndex = `<html><body>
<a href="?C=N;O=D">Name</a>
<a href="/">Parent Directory</a>
<a href="sub/">sub/</a>
<a href="Show.Season.1.Episode.10.mkv">Show.Season.1.Episode.10.mkv</a>
<a href="Show.Season.1.Episode.2.mkv">Show.Season.1.Episode.2.mkv</a>
<a href="The.Matrix.1999.1080p.mkv">The.Matrix.1999.1080p.mkv</a>
<a href="Am%C3%A9lie.2001.mkv">Amélie</a>
</body></html>`

func TestFetchLinksFiltersAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(directoryIndex))
	}))
	defer srv.Close()

	base := srv.URL + "/files/"
	links, err := listing.FetchLinks(context.Background(), srv.Client(), base)
	if err != nil {
		t.Fatalf("FetchLinks: %v", err)
	}
	var names []string
	for _, l := range links {
		names = append(names, l.Name)
	}
	want := []string{
		"Amélie.2001.mkv",
		"Show.Season.1.Episode.2.mkv",
		"Show.Season.1.Episode.10.mkv",
		"The.Matrix.1999.1080p.mkv",
	}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Fatalf("names = %v, want %v", names, want)
	}
	if links[0].URL != base+"Am%C3%A9lie.2001.mkv" {
		t.Fatalf("link url keeps the raw href, got %q", links[0].URL)
	}

	episodes := listing.StorageEpisodes(links)
	if len(episodes) != 2 || episodes[0].Episode != 2 || episodes[0].Link == "" {
		t.Fatalf("storage episodes = %+v", episodes)
	}
	movies := listing.StorageMovies([]listing.Link{links[0], links[3]})
	if len(movies) != 2 || movies[1].Title != "The Matrix" || movies[1].Year != 1999 {
		t.Fatalf("storage movies = %+v", movies)
	}
}

func TestFetchLinksUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := listing.FetchLinks(context.Background(), srv.Client(), srv.URL+"/")
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestMatcherFind(t *testing.T) {
	links := []listing.Link{
		{Name: "The.Matrix.1999.1080p.mkv", URL: "u1"},
		{Name: "The.Matrix.Reloaded.2003.1080p.mkv", URL: "u2"},
		{Name: "Show.Season.1.Episode.2.mkv", URL: "u3"},
	}
	m := listing.Matcher{Threshold: 0.8}

	got, score, err := m.Find("The Matrix 1999", links)
	if err != nil || got.URL != "u1" || score < 0.99 {
		t.Fatalf("Find movie = %+v, %v, %v", got, score, err)
	}
	got, _, err = m.Find("show season 1 episode 2", links)
	if err != nil || got.URL != "u3" {
		t.Fatalf("Find episode = %+v, %v", got, err)
	}
	if _, _, err := m.Find("Heat 1995", links); !errors.Is(err, listing.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestReadLinesAndIDs(t *testing.T) {
	dir := t.TempDir()
	lines := filepath.Join(dir, "movies.txt")
	if err := os.WriteFile(lines, []byte("Heat 1995\n\n# comment\n  Alien 1979  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := listing.ReadLines(lines)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(got) != 2 || got[1] != "Alien 1979" {
		t.Fatalf("lines = %v", got)
	}

	ids := filepath.Join(dir, "ids.txt")
	if err := os.WriteFile(ids, []byte("603\n949\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	parsed, err := listing.ReadIDs(ids)
	if err != nil || len(parsed) != 2 || parsed[0] != 603 {
		t.Fatalf("ReadIDs = %v, %v", parsed, err)
	}

	if err := os.WriteFile(ids, []byte("603\nabc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := listing.ReadIDs(ids); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := listing.ReadLines(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
