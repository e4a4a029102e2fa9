// Package media holds the domain types shared by the sync pipeline: item keys,
// descriptors of what to fetch, and the enriched records that get published.
package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes movies from TV episodes.
type Kind string

const (
	KindMovie   Kind = "movies"
	KindEpisode Kind = "tv"
)

// ParseKind accepts the CLI spellings of a media kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "movies":
		return KindMovie, nil
	case "tv", "episode", "episodes", "show", "shows":
		return KindEpisode, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", value)
	}
}

// IndexColumns names the ledger key columns for the kind.
func (k Kind) IndexColumns() []string {
	if k == KindEpisode {
		return []string{"tv_show"}
	}
	return []string{"movie", "year"}
}

// ItemKey is an ordered tuple of identifying attributes. Comparison is
// case-insensitive on every component.
type ItemKey struct {
	parts []string
}

const keySeparator = "\x1f"

// NewItemKey builds a key from its components, trimming surrounding space.
func NewItemKey(parts ...string) ItemKey {
	cleaned := make([]string, len(parts))
	for i, p := range parts {
		cleaned[i] = strings.Join(strings.Fields(p), " ")
	}
	return ItemKey{parts: cleaned}
}

// MovieKey is the (title, year) key; a zero year is stored as an empty component.
func MovieKey(title string, year int) ItemKey {
	y := ""
	if year > 0 {
		y = strconv.Itoa(year)
	}
	return NewItemKey(title, y)
}

// EpisodeKey is the single-component "Show Season S Episode E" key.
func EpisodeKey(show string, season, episode int) ItemKey {
	return NewItemKey(EpisodeLine(show, season, episode))
}

// EpisodeLine renders the canonical episode title.
func EpisodeLine(show string, season, episode int) string {
	return fmt.Sprintf("%s Season %d Episode %d", strings.TrimSpace(show), season, episode)
}

// Parts returns a copy of the key components in their original case.
func (k ItemKey) Parts() []string {
	return append([]string(nil), k.parts...)
}

// ID is the normalized identity used for map lookups.
func (k ItemKey) ID() string {
	return strings.ToLower(strings.Join(k.parts, keySeparator))
}

// Equal reports case-insensitive equality.
func (k ItemKey) Equal(other ItemKey) bool {
	return k.ID() == other.ID()
}

// IsZero reports whether the key has no non-empty component.
func (k ItemKey) IsZero() bool {
	for _, p := range k.parts {
		if p != "" {
			return false
		}
	}
	return true
}

func (k ItemKey) String() string {
	nonEmpty := make([]string, 0, len(k.parts))
	for _, p := range k.parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// Keyed is implemented by anything the ledger can filter.
type Keyed interface {
	Key() ItemKey
}

// Key lets a bare ItemKey be filtered directly.
func (k ItemKey) Key() ItemKey { return k }

// Descriptor is what is known about an item before enrichment.
type Descriptor struct {
	Kind    Kind
	Title   string // movie title or show name
	Year    int
	Season  int
	Episode int
	Link    string
	// TMDBID skips the search step when set.
	TMDBID int
}

// Key returns the ledger key of the item.
func (d Descriptor) Key() ItemKey {
	if d.Kind == KindEpisode {
		return EpisodeKey(d.Title, d.Season, d.Episode)
	}
	return MovieKey(d.Title, d.Year)
}

func (d Descriptor) String() string {
	return d.Key().String()
}
