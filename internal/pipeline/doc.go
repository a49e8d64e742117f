// Package pipeline orders, executes, and reports on the analysis stages of a
// run. It owns the dependency plan (producer first, independents next,
// stem-dependent stages last), isolates per-stage failures so one broken
// extractor never aborts a run, and emits an ordered event stream ending in a
// single aggregated result.
package pipeline
