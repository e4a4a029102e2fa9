package tmdb

import "strings"

const (
	DefaultImageBaseURL = "https://image.tmdb.org/t/p"
	PosterSize          = "w185"
	BackdropSize        = "w780"
)

// ImageURL joins the image CDN root, a size, and a file path. An empty path
// has no image.
func ImageURL(base, size, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(base, "/") + "/" + size + path
}
