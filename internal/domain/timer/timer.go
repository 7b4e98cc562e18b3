package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Class categorizes what a timer does when it fires.
type Class string

// Timer classes share one lifecycle; the class only changes how the
// satellite reacts to the expiry notification.
const (
	// ClassAlarm rings until snoozed or dismissed.
	ClassAlarm Class = "alarm"
	// ClassTimer is a countdown set from a duration.
	ClassTimer Class = "timer"
	// ClassReminder announces its name at the target time.
	ClassReminder Class = "reminder"
	// ClassCommand runs a routed action instead of sounding.
	ClassCommand Class = "command"
)

// errUnknownClass is returned when a request carries an unrecognized timer class.
var errUnknownClass = errors.New("unknown timer class")

// ParseClass validates a wire-level class string.
func ParseClass(s string) (Class, error) {
	switch c := Class(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassAlarm, ClassTimer, ClassReminder, ClassCommand:
		return c, nil
	default:
		return "", fmt.Errorf("%q: %w", s, errUnknownClass)
	}
}

// Timer is the unit of schedulable work owned by a satellite device.
type Timer struct {
	// ID is the opaque unique identifier allocated at creation.
	ID string
	// DeviceID is the owning satellite device.
	DeviceID string
	// Class is the timer category (alarm, timer, reminder, command).
	Class Class
	// Name is the optional user-supplied label.
	Name string
	// SpokenSentence is the phrase fragment the timer was created from.
	// Used as a matching fallback when Name is absent.
	SpokenSentence string
	// CreatedAt is the creation instant.
	CreatedAt time.Time
	// ExpiresAt is the absolute instant at which the timer fires.
	ExpiresAt time.Time
	// OriginalExpiresAt keeps the first computed expiry across snoozes.
	OriginalExpiresAt time.Time
	// PreExpireWarning is the lead time for the warning event, zero to disable.
	PreExpireWarning time.Duration
	// FromDuration records whether the expiry was computed from a relative
	// duration rather than a clock time. Duration timers count down live on
	// displays; clock timers render a static day and time.
	FromDuration bool
	// Status is the current lifecycle status.
	Status Status
	// SnoozeCount is how many times this timer's alarm chain has been snoozed.
	SnoozeCount int
}

// Clone returns a copy of the timer to avoid leaking internal references.
func (t *Timer) Clone() *Timer {
	if t == nil {
		return nil
	}

	cloned := *t

	return &cloned
}

// Label returns the best human handle for the timer:
// the name when set, otherwise the spoken sentence, otherwise the class.
func (t *Timer) Label() string {
	if t.Name != "" {
		return t.Name
	}

	if t.SpokenSentence != "" {
		return t.SpokenSentence
	}

	return string(t.Class)
}
