// Package config defines the timer hub's runtime settings and provides
// helpers to load, validate and save them in YAML format.
//
// Settings cover the websocket listen address, the SQLite database path,
// snooze and pre-expiry warning durations and the retention policy for
// finished timers. Omitted fields fall back to defaults during validation.
package config
