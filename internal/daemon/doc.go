// Package daemon owns the long-running tonearm process. It enforces
// single-instance execution with a file lock, accepts analysis requests over
// HTTP, and keeps every accepted run alive until its terminal event is
// journaled, whether or not the requesting client is still connected.
package daemon
