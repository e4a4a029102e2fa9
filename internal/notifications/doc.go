// Package notifications publishes run summaries to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers can publish unconditionally. Event gating follows the
// notifications.run_completed and notifications.errors switches.
package notifications
