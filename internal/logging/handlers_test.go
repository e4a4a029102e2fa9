package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newTeeHandler(nil, inner); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestTeeHandlerRespectsPerHandlerLevel(t *testing.T) {
	var all, errs bytes.Buffer
	h := newTeeHandler(
		slog.NewJSONHandler(&all, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With("run", "r1")

	logger.Info("info message")
	if all.Len() == 0 {
		t.Fatal("expected info in main handler")
	}
	if errs.Len() != 0 {
		t.Fatal("expected error handler to skip info")
	}

	logger.Error("error message")
	if !bytes.Contains(errs.Bytes(), []byte(`"run":"r1"`)) {
		t.Fatalf("expected attrs carried to error handler, got %s", errs.String())
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected tee enabled when any handler accepts the level")
	}
}

func TestConsoleHandlerGroupsFlatten(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))
	logger.WithGroup("quota").Info("state", slog.Int("remaining", 4), slog.String("note", "low water"))

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("quota.remaining=4")) {
		t.Fatalf("expected flattened group key, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte(`quota.note="low water"`)) {
		t.Fatalf("expected quoted value, got %q", out)
	}
}

func TestConsoleHandlerGroupAppliesOnlyToLaterAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false)).With("run", "r1").WithGroup("quota")
	logger.Info("state", slog.Int("remaining", 4))

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte(" run=r1")) || !bytes.Contains([]byte(out), []byte("quota.remaining=4")) {
		t.Fatalf("unexpected keys in %q", out)
	}
}

func TestAnnotateKeepsCallerValues(t *testing.T) {
	attrs := annotate([]slog.Attr{slog.String(FieldImpact, "post skipped")}, "publish_failed", warnTriage)
	got := map[string]string{}
	for _, a := range attrs {
		got[a.Key] = a.Value.String()
	}
	if got[FieldImpact] != "post skipped" || got[FieldEventType] != "publish_failed" || got[FieldErrorHint] == "" {
		t.Fatalf("unexpected attrs %v", got)
	}
	if errs := annotate(nil, "run_failed", errorTriage); len(errs) != 2 {
		t.Fatalf("error lines carry no default impact, got %v", errs)
	}
}
