package timer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTimeSpec is returned when a time specification cannot resolve
	// to a future instant. Reported to the caller, never retried.
	ErrInvalidTimeSpec = errors.New("time spec does not resolve to a future instant")
	// ErrNotFound is returned when an operation references a timer id that
	// does not exist or was already purged.
	ErrNotFound = errors.New("timer not found")
	// ErrNoMatch is returned when a spoken fragment matches no timer on the device.
	ErrNoMatch = errors.New("no timer matches")
	// ErrDownstreamFailed is returned when an audio or display side effect
	// fails. The timer's own state transition is not rolled back.
	ErrDownstreamFailed = errors.New("downstream action failed")
)

// AmbiguousError is returned when a spoken fragment matches more than one
// timer. Every candidate is surfaced so the caller can disambiguate;
// silently picking an arbitrary match is a correctness hazard.
type AmbiguousError struct {
	// Fragment is the spoken fragment that matched multiple timers.
	Fragment string
	// Candidates holds every matching timer, in insertion order.
	Candidates []*Timer
}

// Error implements the error interface.
func (e *AmbiguousError) Error() string {
	labels := make([]string, 0, len(e.Candidates))
	for _, t := range e.Candidates {
		labels = append(labels, t.Label())
	}

	return fmt.Sprintf("fragment %q matches %d timers: %s",
		e.Fragment, len(e.Candidates), strings.Join(labels, ", "))
}
