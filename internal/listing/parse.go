package listing

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

var (
	// Greedy prefix so the last year in the line wins ("2001 A Space Odyssey 1968").
	movieYearPattern    = regexp.MustCompile(`^(.*)[\[(]?((?:19[0-9]|20[0-9])[0-9])[\])]?`)
	episodeLinePattern  = regexp.MustCompile(`(?i)^(.*?)\s*Season\s*(\d+)\s*Episode\s*(\d+)\s*$`)
	storageEpisodeRegex = regexp.MustCompile(`^(.+)\.Season\.(\d+)\.Episode\.(\d+)\.(.+)$`)
	nameSeparators      = regexp.MustCompile(`[.\s]+`)
)

// ParseMovieLine splits "Title 2019" or "Title (2019)" into a movie
// descriptor. A line without a year keeps year 0; a line that is only a year
// is treated as the title.
func ParseMovieLine(line string) (media.Descriptor, error) {
	cleaned := strings.NewReplacer("(", "", ")", "").Replace(strings.TrimSpace(line))
	d := media.Descriptor{Kind: media.KindMovie}
	if cleaned == "" {
		return d, services.Wrap(services.ErrValidation, "listing", "parse movie", "empty line", nil)
	}

	match := movieYearPattern.FindStringSubmatch(cleaned)
	if match == nil {
		d.Title = collapse(cleaned)
		return d, nil
	}
	title := strings.TrimRight(strings.TrimSpace(match[1]), "[")
	year, _ := strconv.Atoi(match[2])
	if title == "" {
		d.Title = match[2]
		return d, nil
	}
	d.Title = collapse(title)
	d.Year = year
	return d, nil
}

// ParseEpisodeLine parses "Show Season 1 Episode 2".
func ParseEpisodeLine(line string) (media.Descriptor, error) {
	match := episodeLinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil || strings.TrimSpace(match[1]) == "" {
		return media.Descriptor{}, services.Wrap(services.ErrValidation, "listing", "parse episode",
			fmt.Sprintf("%q is not \"Show Season N Episode M\"", line), nil)
	}
	season, _ := strconv.Atoi(match[2])
	episode, _ := strconv.Atoi(match[3])
	return media.Descriptor{
		Kind:    media.KindEpisode,
		Title:   collapse(match[1]),
		Season:  season,
		Episode: episode,
	}, nil
}

// ParseStorageMovie derives a movie descriptor from a storage file name such
// as "The.Matrix.1999.1080p.mkv". Names without a year lose their last three
// dot-separated segments (quality, codec, extension).
func ParseStorageMovie(name string) (media.Descriptor, bool) {
	name = unescape(name)
	stripped := strings.NewReplacer("(", "", ")", "").Replace(name)
	if loc := movieYearPattern.FindStringIndex(stripped); loc != nil {
		d, err := ParseMovieLine(strings.ReplaceAll(stripped[:loc[1]], ".", " "))
		d.Title = storageTitle(d.Title)
		return d, err == nil && d.Title != ""
	}
	parts := nameSeparators.Split(strings.TrimSpace(name), -1)
	if len(parts) <= 3 {
		return media.Descriptor{}, false
	}
	title := strings.Join(parts[:len(parts)-3], " ")
	if title == "" {
		return media.Descriptor{}, false
	}
	return media.Descriptor{Kind: media.KindMovie, Title: storageTitle(title)}, true
}

// ParseStorageEpisode parses "Show.Name.Season.1.Episode.2.<anything>".
func ParseStorageEpisode(name string) (media.Descriptor, bool) {
	match := storageEpisodeRegex.FindStringSubmatch(unescape(name))
	if match == nil {
		return media.Descriptor{}, false
	}
	season, _ := strconv.Atoi(match[2])
	episode, _ := strconv.Atoi(match[3])
	return media.Descriptor{
		Kind:    media.KindEpisode,
		Title:   storageTitle(strings.ReplaceAll(match[1], ".", " ")),
		Season:  season,
		Episode: episode,
	}, true
}

// ParseMovies parses movie lines, dropping duplicates of an earlier key.
func ParseMovies(lines []string) []media.Descriptor {
	out := make([]media.Descriptor, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		d, err := ParseMovieLine(line)
		if err != nil {
			continue
		}
		if _, dup := seen[d.Key().ID()]; dup {
			continue
		}
		seen[d.Key().ID()] = struct{}{}
		out = append(out, d)
	}
	return out
}

// ParseEpisodes parses episode lines. Lines that do not parse are returned
// separately so the caller can report them.
func ParseEpisodes(lines []string) ([]media.Descriptor, []string) {
	out := make([]media.Descriptor, 0, len(lines))
	var rejected []string
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		d, err := ParseEpisodeLine(line)
		if err != nil {
			rejected = append(rejected, line)
			continue
		}
		if _, dup := seen[d.Key().ID()]; dup {
			continue
		}
		seen[d.Key().ID()] = struct{}{}
		out = append(out, d)
	}
	return out, rejected
}

func unescape(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}

// storageTitle title-cases file names written entirely in lower case
// ("the.matrix.1999.mkv"); names with any capital are kept as written.
func storageTitle(s string) string {
	s = collapse(s)
	if strings.IndexFunc(s, unicode.IsUpper) >= 0 {
		return s
	}
	return cases.Title(language.Und, cases.NoLower).String(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
