package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmdbsync/internal/services"
	"tmdbsync/internal/syncrun"
	"tmdbsync/internal/testsupport"
)

func TestMoviesDryRunPrintsJSONReport(t *testing.T) {
	tmdb := newFakeTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdb.URL))
	path := writeTestConfig(t, cfg)
	titles := filepath.Join(testsupport.BaseDir(cfg), "titles.txt")
	writeFile(t, titles, "Heat 1995\n")

	stdout, _, err := runCLI(t, []string{"movies", "--file", titles, "--dry-run", "--json"}, path)
	if err != nil {
		t.Fatalf("movies --dry-run: %v", err)
	}

	var got struct {
		RunID     string `json:"run_id"`
		DryRun    bool   `json:"dry_run"`
		Requested int    `json:"requested"`
		Succeeded int    `json:"succeeded"`
		Records   []struct {
			Title     string   `json:"title"`
			TMDBID    int      `json:"tmdb_id"`
			Year      int      `json:"year"`
			Directors []string `json:"directors"`
		} `json:"records"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	if got.RunID == "" || !got.DryRun || got.Requested != 1 || got.Succeeded != 1 {
		t.Fatalf("unexpected report: %+v", got)
	}
	if len(got.Records) != 1 || got.Records[0].Title != "Heat" || got.Records[0].TMDBID != 949 || got.Records[0].Year != 1995 {
		t.Fatalf("unexpected records: %+v", got.Records)
	}
	if len(got.Records[0].Directors) != 1 || got.Records[0].Directors[0] != "Michael Mann" {
		t.Fatalf("unexpected directors: %v", got.Records[0].Directors)
	}
	if _, err := os.Stat(cfg.Ledger.MoviesPath); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write the ledger, stat err=%v", err)
	}
}

func TestMoviesDryRunRendersTables(t *testing.T) {
	tmdb := newFakeTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdb.URL))
	path := writeTestConfig(t, cfg)
	titles := filepath.Join(testsupport.BaseDir(cfg), "titles.txt")
	writeFile(t, titles, "Heat 1995\nNowhere 2001\n")

	stdout, _, err := runCLI(t, []string{"movies", "--file", titles, "--dry-run", "--no-preflight"}, path)
	if err != nil {
		t.Fatalf("movies --dry-run: %v", err)
	}
	requireContains(t, stdout, "movies from file, dry run")
	requireContains(t, stdout, "1 succeeded, 1 skipped, 0 failed")
	requireContains(t, stdout, "Enriched")
	requireContains(t, stdout, "Heat")
	requireContains(t, stdout, "Not delivered")
	requireContains(t, stdout, "Nowhere")
	requireContains(t, stdout, string(services.KindNotFound))
}

func TestSyncRequiresExactlyOneSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	if _, _, err := runCLI(t, []string{"movies"}, path); err == nil || !strings.Contains(err.Error(), "file storage ids") {
		t.Fatalf("expected missing source error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"tv", "--file", "a.txt", "--storage"}, path); err == nil || !strings.Contains(err.Error(), "none of the others") {
		t.Fatalf("expected exclusive source error, got %v", err)
	}
}

func TestSyncWithoutDestinationsRequiresDryRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	titles := filepath.Join(testsupport.BaseDir(cfg), "titles.txt")
	writeFile(t, titles, "Heat 1995\n")

	_, _, err := runCLI(t, []string{"movies", "--file", titles, "--no-preflight"}, path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSyncStopsOnFailedPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB("http://127.0.0.1:1"))
	path := writeTestConfig(t, cfg)
	titles := filepath.Join(testsupport.BaseDir(cfg), "titles.txt")
	writeFile(t, titles, "Heat 1995\n")

	_, stderr, err := runCLI(t, []string{"movies", "--file", titles, "--dry-run"}, path)
	if err == nil || !strings.Contains(err.Error(), "preflight failed") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	requireContains(t, stderr, "TMDB")
	requireContains(t, stderr, "FAIL")
}

func TestPromptFlushDecider(t *testing.T) {
	ctx := context.Background()
	cause := services.Wrap(services.ErrLedgerIO, "ledger", "flush", "rename", nil)

	var out strings.Builder
	decide := promptFlushDecider(strings.NewReader("maybe\nr\n"), &out)
	if got := decide(ctx, cause, 1); got != syncrun.FlushRetry {
		t.Fatalf("expected retry, got %v", got)
	}
	requireContains(t, out.String(), "attempt 1")
	if strings.Count(out.String(), "Retry or abort?") != 2 {
		t.Fatalf("expected a second prompt after invalid input, got %q", out.String())
	}

	decide = promptFlushDecider(strings.NewReader("abort\n"), &out)
	if got := decide(ctx, cause, 2); got != syncrun.FlushAbort {
		t.Fatalf("expected abort, got %v", got)
	}

	decide = promptFlushDecider(strings.NewReader(""), &out)
	if got := decide(ctx, cause, 1); got != syncrun.FlushAbort {
		t.Fatalf("expected abort at end of input, got %v", got)
	}
}
