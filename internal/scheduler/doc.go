// Package scheduler drives timer expiry. Each scheduled timer gets a
// one-shot wake-up at its expiry instant; firing is a compare-and-set
// through the store's atomic Update, so every timer expires at most once and
// never after it was canceled or re-armed. The scheduler attaches to the
// store as its status hook, so arming follows lifecycle transitions instead
// of requiring explicit calls.
package scheduler
