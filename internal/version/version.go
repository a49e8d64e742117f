// Package version records the tonearm release identifier reported by the
// health endpoint and the CLI.
package version

// Version is the current tonearm release.
const Version = "0.1.0"
