// Package tmdb wraps The Movie Database v3 API for enrichment.
//
// Every call goes through a fetch.Client, so requests share the TMDB rate
// limiter and 429 handling. Responses decode into typed schemas whose
// Validate methods reject payloads missing the fields a published record
// needs. Those rejections carry services.ErrInsufficientData so callers skip
// the item instead of failing it.
package tmdb
