// Package timers persists the timer set to a local sqlite database so the
// hub survives restarts: scheduled timers are re-armed at startup, overdue
// ones fire immediately, and rows stored as expired are dropped because
// their notification was already delivered.
package timers
