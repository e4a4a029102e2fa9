package syncrun

import (
	"fmt"
	"strings"

	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

// Source selects where a job's items come from.
type Source string

const (
	// SourceFile reads titles ("Heat 1995") or episode lines from Path.
	SourceFile Source = "file"
	// SourceStorage lists the configured storage URL.
	SourceStorage Source = "storage"
	// SourceIDs reads TMDB ids from Path. TV ids expand to every episode.
	SourceIDs Source = "ids"
)

// Job describes one sync run.
type Job struct {
	Kind   media.Kind
	Source Source
	Path   string
	// Destinations are destination URLs or names. Empty selects all.
	Destinations []string
	// Language overrides tmdb.language and translate.target_language for this
	// run.
	Language string
	// Limit caps the items enriched after ledger filtering; zero is unlimited.
	Limit  int
	DryRun bool
}

func (j Job) validate() error {
	switch j.Kind {
	case media.KindMovie, media.KindEpisode:
	default:
		return services.Wrap(services.ErrValidation, "syncrun", "job", fmt.Sprintf("unknown kind %q", j.Kind), nil)
	}
	switch j.Source {
	case SourceFile, SourceIDs:
		if strings.TrimSpace(j.Path) == "" {
			return services.Wrap(services.ErrValidation, "syncrun", "job", fmt.Sprintf("%s source requires a path", j.Source), nil)
		}
	case SourceStorage:
	default:
		return services.Wrap(services.ErrValidation, "syncrun", "job", fmt.Sprintf("unknown source %q", j.Source), nil)
	}
	if j.Limit < 0 {
		return services.Wrap(services.ErrValidation, "syncrun", "job", "limit must not be negative", nil)
	}
	return nil
}
