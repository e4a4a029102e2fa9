package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tmdbsync/internal/fetch"
	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
	"tmdbsync/internal/textutil"
)

// Link is one file entry of the storage directory index.
type Link struct {
	// Name is the unescaped file name.
	Name string
	// URL is the storage base joined with the raw href.
	URL string
}

// FetchLinks downloads the directory index at storageURL and returns its file
// links in natural order. Hrefs containing "/" (parent and sub directories)
// or "C=" (column sort links) are dropped.
func FetchLinks(ctx context.Context, doer fetch.Doer, storageURL string) ([]Link, error) {
	if doer == nil {
		doer = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, storageURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "listing", "storage", "invalid storage url", err)
	}
	resp, err := doer.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrConnection, "listing", "storage", storageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrUpstream, "listing", "storage",
			fmt.Sprintf("%s returned %s", storageURL, resp.Status), nil)
	}
	return ParseIndex(resp.Body, storageURL)
}

// ParseIndex extracts file links from an HTML directory index.
func ParseIndex(r io.Reader, storageURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, "listing", "storage", "parse directory index", err)
	}

	var hrefs []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.Contains(href, "/") || strings.Contains(href, "C=") {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		hrefs = append(hrefs, href)
	})
	slices.SortStableFunc(hrefs, textutil.NaturalCompare)

	links := make([]Link, 0, len(hrefs))
	for _, href := range hrefs {
		links = append(links, Link{Name: unescape(href), URL: storageURL + href})
	}
	return links, nil
}

// StorageMovies parses every link as a movie file, skipping names that do not
// parse and keeping the first link per key.
func StorageMovies(links []Link) []media.Descriptor {
	return fromLinks(links, ParseStorageMovie)
}

// StorageEpisodes parses every link as an episode file.
func StorageEpisodes(links []Link) []media.Descriptor {
	return fromLinks(links, ParseStorageEpisode)
}

func fromLinks(links []Link, parse func(string) (media.Descriptor, bool)) []media.Descriptor {
	out := make([]media.Descriptor, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		d, ok := parse(link.Name)
		if !ok {
			continue
		}
		id := d.Key().ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		d.Link = link.URL
		out = append(out, d)
	}
	return out
}

// DefaultMatchThreshold is the minimum similarity for a storage match.
const DefaultMatchThreshold = 0.8

// ErrNoMatch is returned by Matcher.Find when no link is similar enough.
var ErrNoMatch = errors.New("no storage link matches")

// Matcher locates the storage file for an item by fuzzy name comparison.
type Matcher struct {
	Threshold float64
}

// Find returns the link whose cleaned name is most similar to name. The
// similarity must exceed the threshold.
func (m Matcher) Find(name string, links []Link) (Link, float64, error) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	want := textutil.NewFingerprint(name)
	var (
		best      Link
		bestScore float64
	)
	for _, link := range links {
		score := textutil.CosineSimilarity(want, textutil.NewFingerprint(cleanName(link.Name)))
		if score > bestScore {
			best, bestScore = link, score
		}
	}
	if bestScore <= threshold && bestScore < 1 {
		return Link{}, bestScore, fmt.Errorf("%w: %q", ErrNoMatch, name)
	}
	return best, bestScore, nil
}

func cleanName(name string) string {
	if d, ok := ParseStorageEpisode(name); ok {
		return d.Key().String()
	}
	if d, ok := ParseStorageMovie(name); ok {
		return d.Key().String()
	}
	return strings.ReplaceAll(name, ".", " ")
}
