// Package countdown derives display-facing remaining-time renderings from a
// timer's expiry instant: named day labels, formatted clock times, humanized
// remaining durations and spoken-status sentences. Clock timers get a static
// "<day> at <time>" phrase; duration timers expose the raw instant so
// displays can count down live. Nothing here is scheduling truth.
package countdown
