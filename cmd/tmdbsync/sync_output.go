package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"tmdbsync/internal/media"
	"tmdbsync/internal/syncrun"
)

// recordView is the JSON shape of an enriched record in a dry-run report.
type recordView struct {
	Title     string   `json:"title"`
	TMDBID    int      `json:"tmdb_id"`
	Year      int      `json:"year,omitempty"`
	Show      string   `json:"show,omitempty"`
	Season    int      `json:"season,omitempty"`
	Episode   int      `json:"episode,omitempty"`
	Link      string   `json:"link,omitempty"`
	PosterURL string   `json:"poster_url,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Directors []string `json:"directors,omitempty"`
	Actors    []string `json:"actors,omitempty"`
}

type runView struct {
	*syncrun.Report
	DurationSeconds float64      `json:"duration_seconds"`
	Records         []recordView `json:"records,omitempty"`
}

func newRunView(r *syncrun.Report) runView {
	view := runView{Report: r, DurationSeconds: r.Duration.Seconds()}
	for _, rec := range r.Records {
		view.Records = append(view.Records, recordView{
			Title:     rec.DisplayTitle(),
			TMDBID:    rec.TMDBID,
			Year:      firstYear(rec),
			Show:      rec.Show,
			Season:    rec.Season,
			Episode:   rec.Episode,
			Link:      rec.Link,
			PosterURL: rec.PosterURL,
			Genres:    rec.Genres,
			Directors: rec.Directors(),
			Actors:    rec.Actors(),
		})
	}
	return view
}

func writeReport(out io.Writer, r *syncrun.Report, colorize bool) {
	mode := ""
	if r.DryRun {
		mode = ", dry run"
	}
	fmt.Fprintf(out, "Run %s (%s from %s%s)\n", r.RunID, r.Kind, r.Source, mode)

	c := r.Counts()
	result := verdictPass
	switch {
	case c.Failed > 0:
		result = verdictFail
	case c.Skipped > 0:
		result = verdictSoft
	}
	var block summaryBlock
	block.add("Requested", verdictNote, strconv.Itoa(r.Requested))
	block.add("Already delivered", verdictNote, strconv.Itoa(r.AlreadyDelivered))
	block.add("Result", result,
		fmt.Sprintf("%d succeeded, %d skipped, %d failed in %s", c.Succeeded, c.Skipped, c.Failed, r.Duration.Round(time.Millisecond)))
	if len(r.Rejected) > 0 {
		block.add("Rejected lines", verdictSoft, strings.Join(r.Rejected, " | "))
	}
	block.write(out, colorize)

	if len(r.Delivered) > 0 {
		dests := make([]string, 0, len(r.Delivered))
		for dest := range r.Delivered {
			dests = append(dests, dest)
		}
		slices.Sort(dests)
		rows := make([][]string, 0, len(dests))
		for _, dest := range dests {
			rows = append(rows, []string{dest, strconv.Itoa(r.Delivered[dest])})
		}
		fmt.Fprintln(out, renderTable("Delivered", []string{"Destination", "Posts"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(r.Records) > 0 {
		rows := make([][]string, 0, len(r.Records))
		for _, rec := range r.Records {
			year := ""
			if y := firstYear(rec); y > 0 {
				year = strconv.Itoa(y)
			}
			rows = append(rows, []string{rec.DisplayTitle(), year, strconv.Itoa(rec.TMDBID), rec.Link})
		}
		fmt.Fprintln(out, renderTable("Enriched", []string{"Title", "Year", "TMDB", "Link"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
	}

	if problems := outcomeRows(r); len(problems) > 0 {
		fmt.Fprintln(out, renderTable("Not delivered", []string{"Item", "Status", "Destination", "Kind", "Cause"}, problems, nil))
	}
}

func outcomeRows(r *syncrun.Report) [][]string {
	rows := make([][]string, 0, len(r.Skipped)+len(r.Failed))
	for _, o := range r.Failed {
		rows = append(rows, []string{o.Item, "failed", o.Destination, string(o.Kind), o.Cause})
	}
	for _, o := range r.Skipped {
		rows = append(rows, []string{o.Item, "skipped", o.Destination, string(o.Kind), o.Cause})
	}
	return rows
}

func firstYear(rec *media.Record) int {
	if len(rec.Years) == 0 {
		return 0
	}
	return rec.Years[0]
}
