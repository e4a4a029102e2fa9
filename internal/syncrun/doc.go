// Package syncrun drives one end-to-end sync: it reads what to publish from a
// title file, the storage listing, or a file of TMDB ids, drops what the
// ledger says every selected destination already has, enriches the rest in a
// bounded worker pool, fans the records out to the WordPress destinations,
// and records the deliveries before notifying.
//
// Runner owns the long-lived collaborators (rate limiter, fetch clients,
// sinks, asset cache) so repeated runs in one process share quota state.
package syncrun
