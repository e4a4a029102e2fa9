package preflight

import (
	"context"
	"path/filepath"

	"tmdbsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options narrows which checks RunAll performs.
type Options struct {
	// SkipDestinations omits WordPress reachability checks.
	SkipDestinations bool
	// Destinations limits destination checks to these names or URLs. Empty
	// means all.
	Destinations []string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Ledger directory", filepath.Dir(cfg.Ledger.MoviesPath)))
	if tvDir := filepath.Dir(cfg.Ledger.TVPath); tvDir != filepath.Dir(cfg.Ledger.MoviesPath) {
		results = append(results, CheckDirectoryAccess("TV ledger directory", tvDir))
	}
	results = append(results, CheckDirectoryAccess("Image directory", cfg.Paths.AssetDir))

	results = append(results, CheckTMDB(ctx, cfg.TMDB.BaseURL, cfg.TMDB.APIKey))

	if cfg.Storage.URL != "" {
		results = append(results, CheckStorage(ctx, cfg.Storage.URL))
	}

	if opts.SkipDestinations {
		return results
	}
	selected := cfg.Destinations
	if len(opts.Destinations) > 0 {
		selected = nil
		for _, ref := range opts.Destinations {
			dest, ok := cfg.FindDestination(ref)
			if !ok {
				results = append(results, Result{Name: "Destination " + ref, Detail: "not configured"})
				continue
			}
			selected = append(selected, dest)
		}
	}
	for _, dest := range selected {
		results = append(results, CheckDestination(ctx, dest.Name, dest.URL, dest.Username, dest.Password))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
