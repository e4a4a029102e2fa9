package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"tmdbsync/internal/config"
	"tmdbsync/internal/testsupport"
)

func TestPreflightCommandPasses(t *testing.T) {
	tmdb := newFakeTMDB(t)
	wp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "editor" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id": 1}`))
	}))
	t.Cleanup(wp.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdb.URL), testsupport.WithDestination(wp.URL+"/"))
	path := writeTestConfig(t, cfg)

	stdout, _, err := runCLI(t, []string{"preflight"}, path)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "TMDB")
	requireContains(t, stdout, "Destination "+wp.URL+"/")
	if strings.Contains(stdout, "FAIL") {
		t.Fatalf("unexpected failure:\n%s", stdout)
	}
}

func TestPreflightCommandReportsFailures(t *testing.T) {
	tmdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(tmdb.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(tmdb.URL), testsupport.WithDestination("https://a.example/"))
	path := writeTestConfig(t, cfg)

	stdout, _, err := runCLI(t, []string{"preflight", "--skip-destinations"}, path)
	if err == nil || !strings.Contains(err.Error(), "1 of") {
		t.Fatalf("expected one failed check, got %v", err)
	}
	requireContains(t, stdout, "auth failed")
	if strings.Contains(stdout, "a.example") {
		t.Fatalf("destinations should be skipped:\n%s", stdout)
	}
}

func TestNotifyTestCommand(t *testing.T) {
	var hits atomic.Int32
	var body atomic.Value
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		data, _ := io.ReadAll(r.Body)
		body.Store(string(data))
	}))
	t.Cleanup(ntfy.Close)

	cfg := testsupport.NewConfig(t, func(c *config.Config) { c.Notifications.NtfyTopic = ntfy.URL })
	path := writeTestConfig(t, cfg)

	stdout, _, err := runCLI(t, []string{"notify", "test"}, path)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, stdout, "Test notification sent")
	if hits.Load() != 1 || body.Load() != "Notification system test" {
		t.Fatalf("unexpected ntfy traffic: hits=%d body=%v", hits.Load(), body.Load())
	}
}

func TestNotifyTestWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	stdout, _, err := runCLI(t, []string{"notify", "test"}, path)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, stdout, "Notification not sent")
}
