// Package services defines shared utilities consumed by the sync pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp item keys, stage names, destinations, and
//     correlation identifiers for logging.
//   - Failure markers plus the Wrap helper and KindOf classifier that turn
//     per-item failures into report labels (skipped vs failed).
//
// Use these helpers when wiring new pipeline code so error classification and
// observability stay uniform across packages.
package services
