// Package logging assembles structured slog loggers and formatting helpers used
// across tmdbsync.
//
// It owns the console/JSON handlers, the errors.log tee, and context-aware
// helpers so pipeline code can tag log lines with item keys, destinations, and
// the run correlation id. The package also provides a no-op logger for tests
// and wiring code that cannot fail.
package logging
