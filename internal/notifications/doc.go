// Package notifications delivers push notifications about finished runs via
// ntfy.
//
// NewService returns a noop implementation when no topic is configured, so
// callers publish unconditionally and never branch on notification settings.
// Per-event toggles in the config suppress individual event kinds without
// touching the call sites.
package notifications
