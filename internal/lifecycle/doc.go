// Package lifecycle runs the per-device alarm state machine. A device is
// idle until one of its timers expires, alarming while the alarm rings, and
// idle again after a dismiss or snooze. Side effects (audio, indicator) are
// delegated to Announcer and Display implementations and never gate the
// state transitions themselves.
package lifecycle
