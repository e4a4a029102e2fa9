package services

import "context"

type contextKey string

const (
	itemKeyKey     contextKey = "item_key"
	stageKey       contextKey = "stage"
	destinationKey contextKey = "destination"
	requestIDKey   contextKey = "request_id"
)

// WithItemKey annotates context with the human readable key of the item being processed.
func WithItemKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, itemKeyKey, key)
}

// ItemKeyFromContext extracts the item key if present.
func ItemKeyFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(itemKeyKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithDestination annotates context with the delivery destination.
func WithDestination(ctx context.Context, dest string) context.Context {
	if dest == "" {
		return ctx
	}
	return context.WithValue(ctx, destinationKey, dest)
}

// DestinationFromContext returns the destination if present.
func DestinationFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(destinationKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
