package logging

import (
	"context"
	"log/slog"

	"tmdbsync/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemKey is the standardized key for the item being enriched or delivered.
	FieldItemKey = "item_key"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldDestination is the standardized key for delivery destinations.
	FieldDestination = "destination"
	// FieldTMDBID is the TMDB id an item resolved to.
	FieldTMDBID = "tmdb_id"
	// FieldCorrelationID is the standardized key for the run correlation identifier.
	FieldCorrelationID = "correlation_id"
	// FieldEventType names the event so log queries do not depend on message text.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries services.Kind for classified failures.
	FieldErrorKind = "error_kind"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if key, ok := services.ItemKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItemKey, key))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if dest, ok := services.DestinationFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDestination, dest))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
