// Package match resolves a spoken name fragment to timers on a device.
// Ambiguity is an explicit outcome: every candidate is surfaced and callers
// choose a policy (prompt the user, or opt into most-recently-created wins).
package match
