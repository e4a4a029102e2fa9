package wordpress_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tmdbsync/internal/delivery"
	"tmdbsync/internal/delivery/wordpress"
	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
	"tmdbsync/internal/testsupport"
)

// fakeSite is an in-memory wp/v2 endpoint.
type fakeSite struct {
	mu           sync.Mutex
	terms        map[string]map[string]int // taxonomy -> name -> id
	nextID       int
	searches     map[string]int
	posts        []map[string]any
	uploads      int
	postFailures int
	postStatus   int
	existing     map[string]int // names answered with term_exists
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		terms:    make(map[string]map[string]int),
		searches: make(map[string]int),
		existing: make(map[string]int),
		nextID:   100,
	}
}

func (f *fakeSite) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/img/") {
			_, _ = w.Write([]byte("jpeg"))
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "editor" || pass != "app-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"rest_not_logged_in","message":"nope"}`))
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/wp-json/wp/v2/")
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case path == "media":
			if r.Header.Get("Content-Disposition") == "" {
				t.Errorf("media upload without content disposition")
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != "jpeg" {
				t.Errorf("uploaded body = %q", body)
			}
			f.uploads++
			f.nextID++
			writeJSON(w, map[string]any{"id": f.nextID})
		case path == "movies" || path == "tvshows":
			if f.postFailures > 0 {
				f.postFailures--
				w.WriteHeader(f.postStatus)
				_, _ = w.Write([]byte(`{"code":"boom","message":"server says no"}`))
				return
			}
			var payload map[string]any
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode post: %v", err)
			}
			payload["_type"] = path
			f.posts = append(f.posts, payload)
			f.nextID++
			writeJSON(w, map[string]any{"id": f.nextID})
		case r.Method == http.MethodGet:
			name := r.URL.Query().Get("search")
			f.searches[path+"/"+name]++
			var out []map[string]any
			if id, ok := f.terms[path][name]; ok {
				out = append(out, map[string]any{"id": id, "name": strings.ReplaceAll(name, "&", "&amp;")})
			}
			writeJSON(w, out)
		case r.Method == http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if id, ok := f.existing[body.Name]; ok {
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(w, map[string]any{"code": "term_exists", "message": "exists", "data": map[string]any{"status": 400, "term_id": id}})
				return
			}
			if f.terms[path] == nil {
				f.terms[path] = make(map[string]int)
			}
			f.nextID++
			f.terms[path][body.Name] = f.nextID
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, map[string]any{"id": f.nextID, "name": body.Name})
		default:
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newSink(t *testing.T, srv *httptest.Server, clk *testsupport.FakeClock) *wordpress.Sink {
	t.Helper()
	assets := delivery.NewAssetCache(t.TempDir(), delivery.AssetOptions{Doer: srv.Client(), Clock: clk})
	sink, err := wordpress.New(wordpress.Options{
		URL:        srv.URL + "/",
		Username:   "editor",
		Password:   "app-pass",
		Tags:       []string{"watch online"},
		FieldLimit: 2,
		Assets:     assets,
		Doer:       srv.Client(),
		Clock:      clk,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sink
}

func heat(srvURL string) *media.Record {
	return &media.Record{
		Kind:        media.KindMovie,
		Title:       "Heat",
		Overview:    "A group of professional bank robbers.",
		PosterURL:   srvURL + "/img/w185/heat.jpg",
		BackdropURL: srvURL + "/img/w780/heat.jpg",
		Link:        "https://storage.example/Heat.1995.mkv",
		Runtime:     170,
		Years:       []int{1995},
		Genres:      []string{"Crime", "Drama", "Thriller"},
		MPAA:        []string{"R"},
		Cast: []media.Credit{
			{Name: "Al Pacino", Character: "Vincent Hanna"},
			{Name: "Robert De Niro", Character: "Neil McCauley"},
			{Name: "Val Kilmer", Character: "Chris"},
		},
		Crew: []media.Credit{{Name: "Michael Mann", Department: "Directing", Job: "Director"}},
	}
}

func TestDeliverPublishesMovie(t *testing.T) {
	site := newFakeSite()
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	sink := newSink(t, srv, testsupport.NewFakeClock())
	if sink.Name() != srv.URL+"/" {
		t.Fatalf("name defaults to url, got %q", sink.Name())
	}
	if err := sink.Deliver(context.Background(), heat(srv.URL)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(site.posts) != 1 || site.uploads != 1 {
		t.Fatalf("posts=%d uploads=%d", len(site.posts), site.uploads)
	}
	post := site.posts[0]
	if post["_type"] != "movies" || post["title"] != "Heat" || post["status"] != "publish" {
		t.Fatalf("unexpected post %v", post)
	}
	if post["featured_media"].(float64) == 0 {
		t.Fatal("missing featured media")
	}
	meta := post["meta"].(map[string]any)
	if meta["runtime"] != "170" || meta["poster_url"] != srv.URL+"/img/w780/heat.jpg" {
		t.Fatalf("unexpected meta %v", meta)
	}
	if got := len(post["actors"].([]any)); got != 2 {
		t.Fatalf("actors limited to 2, got %d", got)
	}
	if got := len(post["tags"].([]any)); got != 3 {
		t.Fatalf("expected configured tag, title and title (year), got %d", got)
	}
	if _, ok := site.terms["tags"]["Heat (1995)"]; !ok {
		t.Fatalf("tag terms = %v", site.terms["tags"])
	}
}

func TestTermsAreCachedAcrossPosts(t *testing.T) {
	site := newFakeSite()
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	sink := newSink(t, srv, testsupport.NewFakeClock())
	first := heat(srv.URL)
	second := heat(srv.URL)
	second.Title = "Collateral"
	second.Years = []int{2004}
	for _, r := range []*media.Record{first, second} {
		if err := sink.Deliver(context.Background(), r); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	if n := site.searches["movie_genre/Crime"]; n != 1 {
		t.Fatalf("genre looked up %d times, want 1", n)
	}
	if site.uploads != 2 {
		t.Fatalf("uploads = %d, want one per post", site.uploads)
	}
}

func TestExistingTermIsReused(t *testing.T) {
	site := newFakeSite()
	site.existing["Michael Mann"] = 42
	site.terms["movie_genre"] = map[string]int{"Crime & Noir": 7}
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	rec := heat(srv.URL)
	rec.Genres = []string{"Crime & Noir"}
	if err := newSink(t, srv, testsupport.NewFakeClock()).Deliver(context.Background(), rec); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	post := site.posts[0]
	if ids := post["director"].([]any); len(ids) != 1 || ids[0].(float64) != 42 {
		t.Fatalf("director ids = %v, want [42]", ids)
	}
	if ids := post["movie_genre"].([]any); len(ids) != 1 || ids[0].(float64) != 7 {
		t.Fatalf("genre ids = %v, want [7]", ids)
	}
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	site := newFakeSite()
	site.postFailures = 2
	site.postStatus = http.StatusBadGateway
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	clk := testsupport.NewFakeClock()
	if err := newSink(t, srv, clk).Deliver(context.Background(), heat(srv.URL)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2", sleeps)
	}
	for _, d := range sleeps {
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("backoff %v outside [1s, 3s]", d)
		}
	}
}

func TestDeliverDoesNotRetryClientErrors(t *testing.T) {
	site := newFakeSite()
	site.postFailures = 5
	site.postStatus = http.StatusForbidden
	srv := httptest.NewServer(site.handler(t))
	defer srv.Close()

	clk := testsupport.NewFakeClock()
	err := newSink(t, srv, clk).Deliver(context.Background(), heat(srv.URL))
	if !errors.Is(err, services.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	var status *wordpress.StatusError
	if !errors.As(err, &status) || status.Status != http.StatusForbidden || status.Code != "boom" {
		t.Fatalf("expected 403 status error, got %v", err)
	}
	if len(clk.Sleeps()) != 0 {
		t.Fatalf("client errors must not be retried, slept %v", clk.Sleeps())
	}
}

func TestBuildPostEpisode(t *testing.T) {
	rec := &media.Record{
		Kind:      media.KindEpisode,
		Show:      "The Office",
		Season:    2,
		Episode:   13,
		Title:     "The Injury",
		Years:     []int{2006},
		Companies: []string{"NBC", "Reveille", "Deedle-Dee"},
		Crew: []media.Credit{
			{Name: "Mindy Kaling", Department: "Writing", Job: "Writer", DepartmentLabel: "Сценарий"},
			{Name: "Bryan Gordon", Department: "Directing", Job: "Director"},
		},
	}
	post := wordpress.BuildPost(rec, []string{"tv"}, 2)
	if post.Type != wordpress.PostTypeEpisode || post.Title != "The Office Season 2 Episode 13" {
		t.Fatalf("unexpected post %+v", post)
	}
	if post.Meta["season"] != "2" || post.Meta["episode"] != "13" {
		t.Fatalf("meta = %v", post.Meta)
	}
	if got := post.Terms["series"]; len(got) != 1 || got[0] != "The Office Season 2" {
		t.Fatalf("series = %v", got)
	}
	if got := post.Terms["tvshow_company"]; len(got) != 2 {
		t.Fatalf("companies not limited: %v", got)
	}
	if got := post.Terms["tvshow_writer"]; len(got) != 1 || got[0] != "Mindy Kaling" {
		t.Fatalf("writers = %v", got)
	}
	want := []string{"tv", "The Office Season 2 Episode 13", "The Office Season 2 Episode 13 (2006)"}
	if strings.Join(post.Tags, "|") != strings.Join(want, "|") {
		t.Fatalf("tags = %v", post.Tags)
	}
}
