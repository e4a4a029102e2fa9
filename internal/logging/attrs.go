package logging

import (
	"context"
	"log/slog"
)

// Attr is the attribute type every helper here produces.
type Attr = slog.Attr

var (
	Any      = slog.Any
	Bool     = slog.Bool
	Duration = slog.Duration
	Int      = slog.Int
	String   = slog.String
)

func Strings(key string, values []string) Attr { return slog.Any(key, values) }

// Error keys err under "error"; a nil error still produces the key so log
// queries on error= do not miss the line.
func Error(err error) Attr {
	if err == nil {
		return String("error", "<nil>")
	}
	return Any("error", err)
}

// TMDBID tags a line with the TMDB id a record resolved to.
func TMDBID(id int) Attr { return Int(FieldTMDBID, id) }

// Destination tags a line with the destination URL a delivery targets.
func Destination(url string) Attr { return String(FieldDestination, url) }

func NewNop() *slog.Logger { return slog.New(NoopHandler{}) }

// NewComponentLogger names the subsystem a logger belongs to. A nil logger
// yields a no-op one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// triage holds the operator-facing fields a problem line must carry.
type triage struct {
	hint   string
	impact string
}

var (
	warnTriage  = triage{hint: "check logs for details", impact: "the run continues without this data"}
	errorTriage = triage{hint: "see errors.log for the failing item"}
)

// annotate fills in event_type, error_hint and impact where attrs leave them
// out.
func annotate(attrs []Attr, eventType string, defaults triage) []Attr {
	present := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		present[a.Key] = true
	}
	fill := func(key, value string) {
		if value != "" && !present[key] {
			attrs = append(attrs, String(key, value))
		}
	}
	fill(FieldEventType, eventType)
	fill(FieldErrorHint, defaults.hint)
	fill(FieldImpact, defaults.impact)
	return attrs
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, annotate(attrs, eventType, warnTriage)...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelError, msg, annotate(attrs, eventType, errorTriage)...)
}
