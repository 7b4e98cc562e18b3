package timer

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle status of a timer.
type Status string

const (
	// StatusScheduled means the timer is armed and waiting for its expiry instant.
	StatusScheduled Status = "scheduled"
	// StatusExpired means the timer fired and its notification was delivered.
	StatusExpired Status = "expired"
	// StatusSnoozed is the transient status of a snooze replacement before it
	// is re-armed as scheduled.
	StatusSnoozed Status = "snoozed"
	// StatusCanceled is terminal; a canceled timer is never re-armed.
	StatusCanceled Status = "canceled"
)

// errUnknownStatus is returned when a filter carries an unrecognized status string.
var errUnknownStatus = errors.New("unknown timer status")

// transitions encodes the legal status graph:
// scheduled -> expired | canceled, expired -> snoozed | canceled,
// snoozed -> scheduled | canceled. Nothing leaves canceled.
//
//nolint:gochecknoglobals // Immutable lookup table.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusExpired, StatusCanceled},
	StatusExpired:   {StatusSnoozed, StatusCanceled},
	StatusSnoozed:   {StatusScheduled, StatusCanceled},
	StatusCanceled:  {},
}

// ParseStatus validates a wire-level status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusExpired, StatusSnoozed, StatusCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("%q: %w", s, errUnknownStatus)
	}
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Active reports whether the timer should appear in "active" listings.
// This is a status check on purpose: a ringing-but-unacknowledged timer is
// expired, not active, regardless of the wall clock.
func (s Status) Active() bool {
	return s != StatusExpired && s != StatusCanceled
}
