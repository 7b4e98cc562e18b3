// Package hub wires the timer hub together: the typed service operations
// (set, cancel, list, snooze, dismiss, time remaining), the websocket
// dispatch table over them, and the Run entrypoint that assembles the
// store, scheduler, alarm lifecycle and transport from configuration.
package hub
