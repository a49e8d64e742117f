// Package api defines wire-format types and converters for the daemon's HTTP
// surface. It translates internal run models into transport DTOs so HTTP
// consumers never couple to internal types.
//
// DTOs use snake_case JSON tags matching the daemon's wire format. Timestamps
// use RFC3339 with milliseconds. Request validation runs through
// go-playground/validator tags before a run is accepted.
package api
