// Package preflight provides readiness checks for the upstreams, destinations
// and filesystem paths a sync run depends on.
//
// The CLI "tmdbsync preflight" command prints every Result; the movies and tv
// commands call RunAll before starting and refuse to run when a required
// check fails. Destination checks are skipped for dry runs.
package preflight
