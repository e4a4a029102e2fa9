package syncrun_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tmdbsync/internal/config"
	"tmdbsync/internal/media"
	"tmdbsync/internal/notifications"
	"tmdbsync/internal/services"
	"tmdbsync/internal/syncrun"
	"tmdbsync/internal/testsupport"
)

const (
	destA = "https://a.example/"
	destB = "https://b.example/"
)

var movieDetails = map[string]string{
	"949": `{"id": 949, "title": "Heat", "release_date": "1995-12-15", "runtime": 170,
		"original_language": "en", "poster_path": "/heat.jpg", "backdrop_path": "/heat-b.jpg",
		"genres": [{"id": 1, "name": "Crime"}],
		"credits": {"cast": [{"name": "Al Pacino", "character": "Vincent Hanna"}],
		            "crew": [{"name": "Michael Mann", "department": "Directing", "job": "Director"}]}}`,
	"8195": `{"id": 8195, "title": "Ronin", "release_date": "1998-09-25", "runtime": 122,
		"poster_path": "/ronin.jpg", "backdrop_path": "/ronin-b.jpg"}`,
}

var searchIDs = map[string]int{"heat": 949, "ronin": 8195}

// newTMDB serves search, movie detail and image requests.
func newTMDB(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/img/"):
			_, _ = w.Write([]byte("jpeg"))
		case r.URL.Path == "/search/movie":
			var results []map[string]any
			if id, ok := searchIDs[strings.ToLower(r.URL.Query().Get("query"))]; ok {
				results = append(results, map[string]any{"id": id})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"page": 1, "results": results})
		case strings.HasPrefix(r.URL.Path, "/movie/"):
			body, ok := movieDetails[strings.TrimPrefix(r.URL.Path, "/movie/")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status_message": "not found"}`))
				return
			}
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStorage(t *testing.T, files ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="../">../</a><a href="?C=M;O=A">sort</a>`)
		for _, f := range files {
			fmt.Fprintf(w, `<a href="%s">%s</a>`, f, f)
		}
		fmt.Fprint(w, `</body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type recordingSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []*media.Record
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, r *media.Record) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r)
	return nil
}

func (s *recordingSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.got {
		out = append(out, r.Title)
	}
	return out
}

type event struct {
	name    notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) Publish(_ context.Context, e notifications.Event, p notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{name: e, payload: p})
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLedger(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := os.ReadFile(cfg.Ledger.MoviesPath)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	return string(data)
}

func newRunner(t *testing.T, cfg *config.Config, opts ...syncrun.Option) *syncrun.Runner {
	t.Helper()
	opts = append([]syncrun.Option{syncrun.WithClock(testsupport.NewFakeClock())}, opts...)
	runner, err := syncrun.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return runner
}

func TestRunFileSourceFiltersEnrichesDeliversAndRecords(t *testing.T) {
	tmdbSrv := newTMDB(t)
	storage := newStorage(t, "Heat.1995.1080p.mkv", "Ronin.1998.mkv")
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	cfg.Storage.URL = storage.URL + "/"
	base := testsupport.BaseDir(cfg)
	writeFile(t, base, "data/movies.csv", "movie,year,"+destA+"\nRonin,1998,True\n")
	list := writeFile(t, base, "movies.txt", "# wanted\nHeat (1995)\nRonin 1998\nNowhere 2001\n")

	sink := &recordingSink{name: destA}
	notifier := &recordingNotifier{}
	runner := newRunner(t, cfg, syncrun.WithSinks(sink), syncrun.WithNotifier(notifier))

	ctx := services.WithRequestID(context.Background(), "run-1")
	report, err := runner.Run(ctx, syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.RunID != "run-1" {
		t.Fatalf("expected run id from context, got %q", report.RunID)
	}
	if report.Requested != 3 || report.AlreadyDelivered != 1 {
		t.Fatalf("unexpected filter counts: requested=%d already=%d", report.Requested, report.AlreadyDelivered)
	}
	counts := report.Counts()
	if counts.Succeeded != 1 || counts.Skipped != 1 || counts.Failed != 0 {
		t.Fatalf("unexpected counts %+v (skipped %+v, failed %+v)", counts, report.Skipped, report.Failed)
	}
	if report.Skipped[0].Item != "Nowhere 2001" || report.Skipped[0].Kind != services.KindNotFound {
		t.Fatalf("unexpected skip %+v", report.Skipped[0])
	}
	if got := sink.titles(); len(got) != 1 || got[0] != "Heat" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if link := sink.got[0].Link; link != storage.URL+"/Heat.1995.1080p.mkv" {
		t.Fatalf("storage link not attached: %q", link)
	}
	if report.Delivered[destA] != 1 {
		t.Fatalf("unexpected delivered counts %v", report.Delivered)
	}

	want := "movie,year," + destA + "\nHeat,1995,True\nRonin,1998,True\n"
	if got := readLedger(t, cfg); got != want {
		t.Fatalf("ledger mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}

	if len(notifier.events) != 1 || notifier.events[0].name != notifications.EventRunCompleted {
		t.Fatalf("expected one run_completed notification, got %+v", notifier.events)
	}
	if p := notifier.events[0].payload; p["kind"] != "movies" || p["succeeded"] != 1 || p["skipped"] != 1 {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestRunSecondRunDeliversNothing(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")

	sink := &recordingSink{name: destA}
	runner := newRunner(t, cfg, syncrun.WithSinks(sink), syncrun.WithNotifier(&recordingNotifier{}))
	job := syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list}

	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	report, err := runner.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.AlreadyDelivered != 1 || report.Succeeded != 0 {
		t.Fatalf("expected everything filtered, got %+v", report)
	}
	if got := sink.titles(); len(got) != 1 {
		t.Fatalf("expected a single delivery across runs, got %v", got)
	}
}

func TestRunDeliveryFailureLeavesDestinationOwed(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")

	good := &recordingSink{name: destA}
	bad := &recordingSink{name: destB, err: services.Wrap(services.ErrDelivery, "wordpress", "publish", "Heat", errors.New("502"))}
	runner := newRunner(t, cfg, syncrun.WithSinks(good, bad), syncrun.WithNotifier(&recordingNotifier{}))

	report, err := runner.Run(context.Background(), syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected one failure, got %+v", report.Failed)
	}
	failure := report.Failed[0]
	if failure.Destination != destB || failure.Kind != services.KindDelivery || failure.Item != "Heat 1995" {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if report.Delivered[destA] != 1 || report.Delivered[destB] != 0 {
		t.Fatalf("unexpected delivered counts %v", report.Delivered)
	}

	want := "movie,year," + destA + "," + destB + "\nHeat,1995,True,False\n"
	if got := readLedger(t, cfg); got != want {
		t.Fatalf("ledger mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestRunDestinationSelection(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	cfg.Destinations = []config.Destination{{Name: "blog-b", URL: destB}}
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")

	a := &recordingSink{name: destA}
	b := &recordingSink{name: destB}
	runner := newRunner(t, cfg, syncrun.WithSinks(a, b), syncrun.WithNotifier(&recordingNotifier{}))

	job := syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list, Destinations: []string{"blog-b"}}
	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.titles()) != 0 || len(b.titles()) != 1 {
		t.Fatalf("expected delivery only to b, got a=%v b=%v", a.titles(), b.titles())
	}

	job.Destinations = []string{"https://unknown.example"}
	if _, err := runner.Run(context.Background(), job); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown destination, got %v", err)
	}
}

func TestRunDryRunStopsAfterEnrichment(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Ronin 1998\nHeat 1995\n")

	notifier := &recordingNotifier{}
	runner := newRunner(t, cfg, syncrun.WithNotifier(notifier))

	report, err := runner.Run(context.Background(), syncrun.Job{
		Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list, DryRun: true, Limit: 1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Records) != 1 || report.Records[0].Title != "Ronin" {
		t.Fatalf("expected the first listed movie only, got %+v", report.Records)
	}
	if _, err := os.Stat(cfg.Ledger.MoviesPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("dry run must not write the ledger, stat err = %v", err)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("dry run must not notify, got %+v", notifier.events)
	}
}

func TestRunIDSourceFiltersAfterEnrichment(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	base := testsupport.BaseDir(cfg)
	writeFile(t, base, "data/movies.csv", "movie,year,"+destA+"\nHeat,1995,True\n")
	ids := writeFile(t, base, "ids.txt", "949\n8195\n404\n")

	sink := &recordingSink{name: destA}
	runner := newRunner(t, cfg, syncrun.WithSinks(sink), syncrun.WithNotifier(&recordingNotifier{}))

	report, err := runner.Run(context.Background(), syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceIDs, Path: ids})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Requested != 2 || report.AlreadyDelivered != 1 {
		t.Fatalf("unexpected counts requested=%d already=%d", report.Requested, report.AlreadyDelivered)
	}
	if got := sink.titles(); len(got) != 1 || got[0] != "Ronin" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Item != "movies/404" {
		t.Fatalf("expected id 404 skipped, got %+v", report.Skipped)
	}
}

func TestRunFlushDeciderRetries(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")

	// A directory where the temp file goes makes the rewrite fail.
	blocker := cfg.Ledger.MoviesPath + ".tmp"
	if err := os.MkdirAll(filepath.Join(blocker, "x"), 0o755); err != nil {
		t.Fatal(err)
	}

	var attempts []int
	decider := func(_ context.Context, err error, attempt int) syncrun.FlushAction {
		if !errors.Is(err, services.ErrLedgerIO) {
			t.Errorf("decider got unexpected error %v", err)
		}
		attempts = append(attempts, attempt)
		if err := os.RemoveAll(blocker); err != nil {
			t.Errorf("remove blocker: %v", err)
		}
		return syncrun.FlushRetry
	}
	runner := newRunner(t, cfg,
		syncrun.WithSinks(&recordingSink{name: destA}),
		syncrun.WithNotifier(&recordingNotifier{}),
		syncrun.WithFlushDecider(decider),
	)

	if _, err := runner.Run(context.Background(), syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Fatalf("expected one decider call, got %v", attempts)
	}
	if got := readLedger(t, cfg); !strings.Contains(got, "Heat,1995,True") {
		t.Fatalf("ledger not written after retry:\n%s", got)
	}
}

func TestRunFlushAbortReportsFailure(t *testing.T) {
	tmdbSrv := newTMDB(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")
	if err := os.MkdirAll(filepath.Join(cfg.Ledger.MoviesPath+".tmp", "x"), 0o755); err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	runner := newRunner(t, cfg, syncrun.WithSinks(&recordingSink{name: destA}), syncrun.WithNotifier(notifier))

	report, err := runner.Run(context.Background(), syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list})
	if !errors.Is(err, services.ErrLedgerIO) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if report == nil || report.Delivered[destA] != 1 {
		t.Fatalf("expected partial report with the delivery, got %+v", report)
	}
	if len(notifier.events) != 1 || notifier.events[0].name != notifications.EventRunFailed {
		t.Fatalf("expected run_failed notification, got %+v", notifier.events)
	}
	if ctxLabel := notifier.events[0].payload["context"]; ctxLabel != "ledger flush" {
		t.Fatalf("unexpected failure context %v", ctxLabel)
	}
}

func TestRunValidatesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := newRunner(t, cfg, syncrun.WithSinks(&recordingSink{name: destA}), syncrun.WithNotifier(&recordingNotifier{}))

	cases := []struct {
		name string
		job  syncrun.Job
		want error
	}{
		{"unknown kind", syncrun.Job{Kind: "music", Source: syncrun.SourceFile, Path: "x"}, services.ErrValidation},
		{"missing path", syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceIDs}, services.ErrValidation},
		{"negative limit", syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceStorage, Limit: -1}, services.ErrValidation},
		{"storage unset", syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceStorage}, services.ErrConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := runner.Run(context.Background(), tc.job); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRunWithoutDestinationsRequiresDryRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := newRunner(t, cfg, syncrun.WithNotifier(&recordingNotifier{}))
	_, err := runner.Run(context.Background(), syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: "movies.txt"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

// newTranslator echoes every text with a "<lang>:" prefix and records the
// requested language pairs.
func newTranslator(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var pairs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		lang := r.PostForm.Get("lang")
		mu.Lock()
		pairs = append(pairs, lang)
		mu.Unlock()
		var out []string
		for _, text := range r.PostForm["text"] {
			out = append(out, lang+":"+text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "lang": lang, "text": out})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), pairs...)
	}
}

func TestRunJobLanguageDrivesTranslationTarget(t *testing.T) {
	tmdbSrv := newTMDB(t)
	translator, pairs := newTranslator(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	cfg.Translate.APIKey = "yandex-key"
	cfg.Translate.BaseURL = translator.URL
	cfg.Translate.SourceLanguage = "en"
	cfg.Translate.TargetLanguage = "de"
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")

	sink := &recordingSink{name: destA}
	runner := newRunner(t, cfg, syncrun.WithSinks(sink), syncrun.WithNotifier(&recordingNotifier{}))
	job := syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list, Language: "ru-RU"}
	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := pairs()
	if len(got) == 0 {
		t.Fatal("expected credits to be translated")
	}
	for _, pair := range got {
		if pair != "en-ru" {
			t.Fatalf("expected job language to set the target, got pairs %v", got)
		}
	}
	if len(sink.got) != 1 {
		t.Fatalf("expected one delivery, got %v", sink.titles())
	}
	if cast := sink.got[0].Cast; len(cast) != 1 || cast[0].Name != "en-ru:Al Pacino" {
		t.Fatalf("cast not translated to job language: %+v", cast)
	}
}

func TestRunJobLanguageMatchingSourceSkipsTranslation(t *testing.T) {
	tmdbSrv := newTMDB(t)
	translator, pairs := newTranslator(t)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdbSrv.URL))
	cfg.Translate.APIKey = "yandex-key"
	cfg.Translate.BaseURL = translator.URL
	cfg.Translate.SourceLanguage = "en"
	cfg.Translate.TargetLanguage = "ru"
	list := writeFile(t, testsupport.BaseDir(cfg), "movies.txt", "Heat 1995\n")

	sink := &recordingSink{name: destA}
	runner := newRunner(t, cfg, syncrun.WithSinks(sink), syncrun.WithNotifier(&recordingNotifier{}))
	job := syncrun.Job{Kind: media.KindMovie, Source: syncrun.SourceFile, Path: list, Language: "en-US"}
	if _, err := runner.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := pairs(); len(got) != 0 {
		t.Fatalf("expected no translation for an English job, got pairs %v", got)
	}
	if cast := sink.got[0].Cast; len(cast) != 1 || cast[0].Name != "Al Pacino" {
		t.Fatalf("cast should keep TMDB names: %+v", cast)
	}
}
