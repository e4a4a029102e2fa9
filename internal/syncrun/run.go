package syncrun

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"tmdbsync/internal/batch"
	"tmdbsync/internal/delivery"
	"tmdbsync/internal/enrich"
	"tmdbsync/internal/ledger"
	"tmdbsync/internal/listing"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
	"tmdbsync/internal/notifications"
	"tmdbsync/internal/services"
	"tmdbsync/internal/textutil"
)

// Run executes job. The report is returned even when err is non-nil so the
// caller can show partial progress.
func (r *Runner) Run(ctx context.Context, job Job) (*Report, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}
	sinks, err := r.selectSinks(job.Destinations)
	if err != nil {
		return nil, err
	}
	if len(sinks) == 0 && !job.DryRun {
		return nil, services.Wrap(services.ErrConfiguration, "syncrun", "destinations", "no destinations configured", nil)
	}

	start := r.clock.Now()
	rep := &Report{
		Kind:      job.Kind,
		Source:    job.Source,
		DryRun:    job.DryRun,
		Delivered: make(map[string]int, len(sinks)),
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		rep.RunID = id
	}
	ctx = services.WithStage(ctx, "sync")
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("sync run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("kind", string(job.Kind)),
		logging.String("source", string(job.Source)),
		logging.Int("destinations", len(sinks)),
		logging.Bool("dry_run", job.DryRun),
	)

	err = r.run(ctx, job, sinks, rep)
	rep.Duration = r.clock.Now().Sub(start)
	if cerr := r.assets.Cleanup(); cerr != nil {
		logging.WarnWithContext(logger, "image cleanup failed", "asset_cleanup_failed",
			logging.Error(cerr),
			logging.String(logging.FieldImpact, "downloaded images remain on disk"),
		)
	}

	if err != nil {
		logging.ErrorWithContext(logger, "sync run failed", "run_failed",
			logging.String("during", rep.stage),
			logging.Error(err),
		)
		r.publish(ctx, notifications.EventRunFailed, notifications.Payload{"context": rep.stage, "error": err})
		return rep, err
	}

	c := rep.Counts()
	logger.Info("sync run completed",
		logging.String(logging.FieldEventType, "run_completed"),
		logging.Int("requested", rep.Requested),
		logging.Int("already_delivered", rep.AlreadyDelivered),
		logging.Int("succeeded", c.Succeeded),
		logging.Int("skipped", c.Skipped),
		logging.Int("failed", c.Failed),
		logging.Int("delivered", rep.DeliveredTotal()),
		logging.Duration("duration", rep.Duration),
	)
	if !job.DryRun {
		r.publish(ctx, notifications.EventRunCompleted, rep.payload())
	}
	return rep, nil
}

func (r *Runner) run(ctx context.Context, job Job, sinks []delivery.Sink, rep *Report) error {
	dests := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		dests = append(dests, sink.Name())
		rep.Delivered[sink.Name()] = 0
	}

	rep.stage = "ledger"
	l, closeLedger, err := ledger.Open(ctx, r.cfg.Ledger.Backend, r.cfg.LedgerPath(string(job.Kind)), job.Kind, r.baseLogger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLedger(); cerr != nil {
			logging.WarnWithContext(r.logger, "ledger close failed", "ledger_close_failed", logging.Error(cerr))
		}
	}()

	rep.stage = "storage listing"
	var links []listing.Link
	if r.cfg.Storage.URL != "" {
		links, err = listing.FetchLinks(ctx, r.httpDoer(r.cfg.Fetch.Timeout()), r.cfg.Storage.URL)
		if err != nil {
			return err
		}
	} else if job.Source == SourceStorage {
		return services.Wrap(services.ErrConfiguration, "syncrun", "storage", "storage.url is not configured", nil)
	}

	transformer, err := r.transformerFor(job.Language)
	if err != nil {
		return err
	}
	enricher := enrich.New(r.primary, enrich.Options{
		Language:    firstNonEmpty(job.Language, r.cfg.TMDB.Language),
		MaxAttempts: r.cfg.Enrich.MaxAttempts,
		QuotaMargin: r.cfg.Enrich.QuotaMargin(),
		Secondary:   r.secondary,
		Transformer: transformer,
		Clock:       r.clock,
		Logger:      r.baseLogger,
	})

	var records []*media.Record
	if job.Source == SourceIDs {
		records, err = r.recordsFromIDs(ctx, job, l, dests, enricher, rep)
	} else {
		records, err = r.recordsFromDescriptors(ctx, job, l, dests, links, enricher, rep)
	}
	if err != nil {
		return err
	}

	rep.stage = "link"
	records = r.attachLinks(ctx, records, links, rep)
	rep.Succeeded = len(records)
	if job.DryRun {
		rep.Records = records
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	rep.stage = "deliver"
	for _, sink := range sinks {
		l.AddDestinations(sink.Name())
	}
	fanout := delivery.NewFanout(sinks, r.cfg.Batch.DeliveryWorkers, r.baseLogger)
	result := fanout.Deliver(ctx, records, func(dest string, key media.ItemKey) bool {
		done, err := l.Delivered(ctx, key, dest)
		return err != nil || !done
	})
	for dest, keys := range result.Delivered {
		l.Record(dest, keys...)
		rep.Delivered[dest] = len(keys)
	}
	for _, f := range result.Failures {
		rep.fail(f.Key.String(), f.Destination, f.Err)
	}

	rep.stage = "ledger flush"
	return r.flush(ctx, l)
}

// recordsFromDescriptors handles file and storage sources, where keys are
// known before enrichment so the ledger filter runs first.
func (r *Runner) recordsFromDescriptors(ctx context.Context, job Job, l *ledger.Ledger, dests []string, links []listing.Link, enricher *enrich.Enricher, rep *Report) ([]*media.Record, error) {
	rep.stage = "source"
	var descriptors []media.Descriptor
	switch job.Source {
	case SourceFile:
		lines, err := listing.ReadLines(job.Path)
		if err != nil {
			return nil, err
		}
		if job.Kind == media.KindEpisode {
			var rejected []string
			descriptors, rejected = listing.ParseEpisodes(lines)
			rep.Rejected = rejected
			if len(rejected) > 0 {
				logging.WarnWithContext(r.logger, "unparseable episode lines ignored", "episode_lines_rejected",
					logging.Int("count", len(rejected)),
					logging.Strings("lines", media.Limit(rejected, 5)),
					logging.String(logging.FieldErrorHint, `episode lines must read "<Show> Season <S> Episode <E>"`),
				)
			}
		} else {
			descriptors = listing.ParseMovies(lines)
		}
	case SourceStorage:
		if job.Kind == media.KindEpisode {
			descriptors = listing.StorageEpisodes(links)
		} else {
			descriptors = listing.StorageMovies(links)
		}
	}
	rep.Requested = len(descriptors)

	rep.stage = "ledger filter"
	pending, err := filterOwed(ctx, l, descriptors, dests)
	if err != nil {
		return nil, err
	}
	rep.AlreadyDelivered = len(descriptors) - len(pending)
	pending = media.Limit(pending, job.Limit)

	rep.stage = "enrich"
	res := batch.Run(ctx, pending, enricher.Enrich, batch.Options{
		Workers:  r.cfg.Batch.Workers,
		Logger:   r.baseLogger,
		Label:    "enrich " + string(job.Kind),
		Progress: r.reportProgress("enrich"),
	})
	collect(rep, res.Skipped, res.Failed, func(d media.Descriptor) string { return d.String() })
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortRecords(res.Succeeded), nil
}

// recordsFromIDs enriches first because an id carries no ledger key.
func (r *Runner) recordsFromIDs(ctx context.Context, job Job, l *ledger.Ledger, dests []string, enricher *enrich.Enricher, rep *Report) ([]*media.Record, error) {
	rep.stage = "source"
	ids, err := listing.ReadIDs(job.Path)
	if err != nil {
		return nil, err
	}

	rep.stage = "enrich"
	var records []*media.Record
	opts := batch.Options{
		Workers:  r.cfg.Batch.Workers,
		Logger:   r.baseLogger,
		Label:    "enrich " + string(job.Kind) + " ids",
		Progress: r.reportProgress("enrich"),
	}
	idName := func(id int) string { return string(job.Kind) + "/" + strconv.Itoa(id) }
	if job.Kind == media.KindEpisode {
		res := batch.Run(ctx, ids, enricher.ExpandShow, opts)
		collect(rep, res.Skipped, res.Failed, idName)
		for _, episodes := range res.Succeeded {
			records = append(records, episodes...)
		}
	} else {
		descriptors := make([]media.Descriptor, 0, len(ids))
		for _, id := range ids {
			descriptors = append(descriptors, media.Descriptor{Kind: media.KindMovie, TMDBID: id})
		}
		res := batch.Run(ctx, descriptors, enricher.Enrich, opts)
		collect(rep, res.Skipped, res.Failed, func(d media.Descriptor) string { return idName(d.TMDBID) })
		records = res.Succeeded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records = sortRecords(records)
	rep.Requested = len(records)

	rep.stage = "ledger filter"
	pending, err := filterOwed(ctx, l, records, dests)
	if err != nil {
		return nil, err
	}
	rep.AlreadyDelivered = len(records) - len(pending)
	return media.Limit(pending, job.Limit), nil
}

// filterOwed drops items every destination already has. A dry run without
// destinations keeps everything.
func filterOwed[T media.Keyed](ctx context.Context, l *ledger.Ledger, items []T, dests []string) ([]T, error) {
	if len(dests) == 0 {
		return items, nil
	}
	return ledger.FilterUnseen(ctx, l, items, dests)
}

// attachLinks fills missing storage links by fuzzy name match. Records no link
// matches are skipped so they are retried once the file appears.
func (r *Runner) attachLinks(ctx context.Context, records []*media.Record, links []listing.Link, rep *Report) []*media.Record {
	if len(links) == 0 {
		return records
	}
	matcher := listing.Matcher{Threshold: r.cfg.Storage.MatchThreshold}
	logger := logging.WithContext(ctx, r.logger)
	kept := records[:0]
	for _, rec := range records {
		if rec.Link != "" {
			kept = append(kept, rec)
			continue
		}
		name := matchName(rec)
		link, score, err := matcher.Find(name, links)
		if err != nil {
			rep.skip(rec.Key().String(), services.Wrap(services.ErrNotFound, "syncrun", "link", fmt.Sprintf("best similarity %.2f", score), err))
			continue
		}
		logger.Debug("storage link matched",
			logging.String(logging.FieldItemKey, rec.Key().String()),
			logging.String("file", link.Name),
			logging.Any("similarity", score),
		)
		rec.Link = link.URL
		kept = append(kept, rec)
	}
	return kept
}

func (r *Runner) flush(ctx context.Context, l *ledger.Ledger) error {
	for attempt := 1; ; attempt++ {
		err := l.Flush(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, services.ErrLedgerIO) || ctx.Err() != nil {
			return err
		}
		logging.WarnWithContext(r.logger, "ledger flush failed", "ledger_flush_failed",
			logging.Int("attempt", attempt),
			logging.Int("pending", l.Pending()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "deliveries are not recorded; aborting reposts them next run"),
		)
		if r.decider(ctx, err, attempt) != FlushRetry {
			return err
		}
	}
}

func (r *Runner) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(r.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// selectSinks resolves wanted destination names or URLs against the sinks.
func (r *Runner) selectSinks(wanted []string) ([]delivery.Sink, error) {
	if len(wanted) == 0 {
		return r.sinks, nil
	}
	var selected []delivery.Sink
	seen := make(map[string]bool, len(wanted))
	for _, ref := range wanted {
		name := strings.TrimSpace(ref)
		if dest, ok := r.cfg.FindDestination(name); ok {
			name = dest.URL
		} else if name != "" && !strings.HasSuffix(name, "/") {
			name += "/"
		}
		idx := slices.IndexFunc(r.sinks, func(s delivery.Sink) bool { return s.Name() == name })
		if idx < 0 {
			return nil, services.Wrap(services.ErrConfiguration, "syncrun", "destinations", fmt.Sprintf("unknown destination %q", ref), nil)
		}
		if !seen[name] {
			seen[name] = true
			selected = append(selected, r.sinks[idx])
		}
	}
	return selected, nil
}

func collect[I any](rep *Report, skipped, failed []batch.Outcome[I], name func(I) string) {
	for _, o := range skipped {
		rep.skip(name(o.Item), o.Err)
	}
	for _, o := range failed {
		rep.fail(name(o.Item), "", o.Err)
	}
}

func sortRecords(records []*media.Record) []*media.Record {
	slices.SortStableFunc(records, func(a, b *media.Record) int {
		return textutil.NaturalCompare(a.Key().String(), b.Key().String())
	})
	return records
}

// matchName is the "Title Year" or episode line compared against file names.
func matchName(rec *media.Record) string {
	if rec.Kind == media.KindEpisode {
		return media.EpisodeLine(rec.Show, rec.Season, rec.Episode)
	}
	year := 0
	if len(rec.Years) > 0 {
		year = rec.Years[0]
	}
	return media.MovieKey(rec.Title, year).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
