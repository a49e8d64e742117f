// Package preflight provides readiness checks for the filesystem paths the
// daemon depends on.
//
// The daemon runs RunAll once at startup and logs every failure; the CLI
// status command reuses the individual checks for display. A failed check
// never aborts startup on its own, it only surfaces what a run would later
// trip over.
package preflight
