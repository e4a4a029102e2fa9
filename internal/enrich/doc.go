// Package enrich turns a descriptor of a movie or episode into a complete,
// publishable media.Record.
//
// Each item moves through four steps in strict order: resolve the TMDB id,
// fetch details with credits appended, fill gaps from the secondary source,
// and translate cast and crew. Resolve and detail calls are retried when the
// provider's quota is exhausted; every other failure ends the item. Secondary
// lookups are best effort and only ever log.
package enrich
