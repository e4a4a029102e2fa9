package wordpress

import (
	"fmt"
	"strconv"

	"tmdbsync/internal/media"
)

// Post types registered by the destination theme.
const (
	PostTypeMovie   = "movies"
	PostTypeEpisode = "tvshows"
	tagTaxonomy     = "tags"
)

// Post is the publishable form of a record.
type Post struct {
	Type     string              `json:"type"`
	Title    string              `json:"title"`
	ImageURL string              `json:"image_url"`
	Meta     map[string]string   `json:"meta"`
	Terms    map[string][]string `json:"terms"`
	Tags     []string            `json:"tags"`
}

// BuildPost maps a record onto the theme's meta keys and taxonomies. Every
// list is cut to limit entries (limit <= 0 keeps all).
func BuildPost(r *media.Record, tags []string, limit int) Post {
	f := r.Fields(limit)

	post := Post{
		Title:    r.DisplayTitle(),
		ImageURL: r.PosterURL,
		Meta: map[string]string{
			"description":     r.Overview,
			"movie_first_url": r.Link,
			"poster_url":      r.BackdropURL,
			"runtime":         runtimeValue(r.Runtime),
		},
	}

	if r.Kind == media.KindEpisode {
		post.Type = PostTypeEpisode
		post.Meta["season"] = strconv.Itoa(r.Season)
		post.Meta["episode"] = strconv.Itoa(r.Episode)
		post.Terms = map[string][]string{
			"series":          {r.Series()},
			"tvshow_writer":   f.Writers,
			"tvshow_producer": f.Producers,
			"tvshow_director": f.Directors,
			"tvshow_actors":   f.Actors,
			"tvshow_company":  f.Companies,
			"tvshow_language": f.Languages,
			"tvshow_country":  f.Countries,
			"tvshow_genre":    f.Genres,
			"tvshow_year":     f.Years,
		}
	} else {
		post.Type = PostTypeMovie
		post.Terms = map[string][]string{
			"writer":      f.Writers,
			"mpaaratings": f.MPAA,
			"language":    f.Languages,
			"company":     f.Companies,
			"producer":    f.Producers,
			"director":    f.Directors,
			"country":     f.Countries,
			"movie_genre": f.Genres,
			"movie_year":  f.Years,
			"actors":      f.Actors,
		}
	}

	post.Tags = append(post.Tags, tags...)
	post.Tags = append(post.Tags, post.Title)
	if len(r.Years) > 0 && r.Years[0] > 0 {
		post.Tags = append(post.Tags, fmt.Sprintf("%s (%d)", post.Title, r.Years[0]))
	}
	return post
}

func runtimeValue(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	return strconv.Itoa(minutes)
}
