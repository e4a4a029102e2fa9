package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/preflight"
	"tmdbsync/internal/services"
	"tmdbsync/internal/syncrun"
)

type syncFlags struct {
	file        string
	storage     bool
	ids         string
	dest        []string
	language    string
	limit       int
	dryRun      bool
	json        bool
	noPreflight bool
}

func (f syncFlags) job(kind media.Kind) syncrun.Job {
	job := syncrun.Job{
		Kind:         kind,
		Destinations: f.dest,
		Language:     f.language,
		Limit:        f.limit,
		DryRun:       f.dryRun,
	}
	switch {
	case f.storage:
		job.Source = syncrun.SourceStorage
	case f.ids != "":
		job.Source = syncrun.SourceIDs
		job.Path = f.ids
	default:
		job.Source = syncrun.SourceFile
		job.Path = f.file
	}
	return job
}

func newSyncCommand(ctx *commandContext, kind media.Kind) *cobra.Command {
	var flags syncFlags

	short := "Sync movies to the configured destinations"
	fileHelp := `Text file of movie titles, one "Title Year" per line`
	idsHelp := "Text file of TMDB movie ids"
	if kind == media.KindEpisode {
		short = "Sync TV episodes to the configured destinations"
		fileHelp = `Text file of episode lines ("Show Season 1 Episode 2")`
		idsHelp = "Text file of TMDB show ids; every episode is synced"
	}

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, ctx, flags.job(kind), flags)
		},
	}

	cmd.Flags().StringVar(&flags.file, "file", "", fileHelp)
	cmd.Flags().BoolVar(&flags.storage, "storage", false, "List items from the configured storage URL")
	cmd.Flags().StringVar(&flags.ids, "ids", "", idsHelp)
	cmd.Flags().StringSliceVar(&flags.dest, "dest", nil, "Destination name or URL (repeatable, default all)")
	cmd.Flags().StringVar(&flags.language, "language", "", "TMDB language override, e.g. ru-RU")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Maximum number of new items to process (0 = no limit)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Enrich items without publishing or touching the ledger")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run report as JSON")
	cmd.Flags().BoolVar(&flags.noPreflight, "no-preflight", false, "Skip reachability checks before the run")
	cmd.MarkFlagsMutuallyExclusive("file", "storage", "ids")
	cmd.MarkFlagsOneRequired("file", "storage", "ids")

	return cmd
}

func runSync(cmd *cobra.Command, ctx *commandContext, job syncrun.Job, flags syncFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = services.WithRequestID(runCtx, uuid.NewString())

	if !flags.noPreflight {
		results := preflight.RunAll(runCtx, cfg, preflight.Options{
			SkipDestinations: job.DryRun,
			Destinations:     job.Destinations,
		})
		if failed := preflight.Failed(results); len(failed) > 0 {
			var block summaryBlock
			for _, r := range failed {
				block.add(r.Name, verdictFail, r.Detail)
			}
			errOut := cmd.ErrOrStderr()
			block.write(errOut, colorEnabled(errOut))
			return fmt.Errorf("preflight failed: %d check(s) did not pass (use --no-preflight to skip)", len(failed))
		}
	}

	opts := []syncrun.Option{syncrun.WithLogger(logger)}
	if in, ok := cmd.InOrStdin().(*os.File); ok && interactive(in) {
		opts = append(opts, syncrun.WithFlushDecider(promptFlushDecider(in, cmd.ErrOrStderr())))
	}
	if colorEnabled(cmd.ErrOrStderr()) && !flags.json {
		opts = append(opts, syncrun.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}

	runner, err := syncrun.New(cfg, opts...)
	if err != nil {
		return err
	}
	report, runErr := runner.Run(runCtx, job)
	if report != nil {
		if flags.json {
			if err := writeJSON(cmd, newRunView(report)); err != nil {
				return err
			}
		} else {
			writeReport(cmd.OutOrStdout(), report, colorEnabled(cmd.OutOrStdout()))
		}
	}
	if runErr != nil {
		return runErr
	}
	if n := len(report.Failed); n > 0 {
		return fmt.Errorf("%d item(s) failed; details in %s", n, filepath.Join(cfg.Paths.LogDir, logging.ErrorLogFileName))
	}
	return nil
}

// promptFlushDecider asks the operator whether to retry a failed ledger
// save. End of input aborts.
func promptFlushDecider(in io.Reader, out io.Writer) syncrun.FlushDecider {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, err error, attempt int) syncrun.FlushAction {
		fmt.Fprintf(out, "Saving the ledger failed (attempt %d): %v\n", attempt, err)
		for ctx.Err() == nil {
			fmt.Fprint(out, "Retry or abort? [r/a]: ")
			line, readErr := reader.ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "r", "retry":
				return syncrun.FlushRetry
			case "a", "abort":
				return syncrun.FlushAbort
			}
			if readErr != nil {
				break
			}
		}
		return syncrun.FlushAbort
	}
}

func progressPrinter(w io.Writer) syncrun.ProgressFunc {
	var mu sync.Mutex
	return func(stage string, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "\r%s: %d/%d", stage, done, total)
		if done >= total {
			fmt.Fprintln(w)
		}
	}
}
