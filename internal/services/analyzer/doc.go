// Package analyzer shells out to the tonearm analyzer toolkit, which hosts
// the model-backed feature extractors (beats, structure, mood, harmony, and
// the rest) behind a one-stage-per-invocation command line.
package analyzer
