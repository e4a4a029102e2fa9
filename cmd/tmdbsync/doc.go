// Package main hosts the tmdbsync CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into sync runs against the
// configured destinations, ledger inspection, preflight checks and
// configuration scaffolding. Configuration resolution and logger setup live
// in the shared command context so subcommands only describe their flags and
// output.
//
// New behavior belongs in the internal packages first; commands here should
// stay thin wrappers that build a job and render its report.
package main
