package timespec

import (
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// Kind discriminates the two ways a spoken request pins down an instant.
type Kind string

const (
	// KindInterval is a relative duration ("in ten minutes").
	KindInterval Kind = "interval"
	// KindClock is an absolute time of day ("at 7 30 am on friday").
	KindClock Kind = "clock"
)

// Meridiem qualifiers accepted on clock specs.
const (
	MeridiemAM = "am"
	MeridiemPM = "pm"
)

// DayTomorrow is the day qualifier for "tomorrow"; any other non-empty
// qualifier must be a lowercase weekday name.
const DayTomorrow = "tomorrow"

// hoursPerHalfDay is the rollover applied when a bare clock time has already passed.
const hoursPerHalfDay = 12

// Spec is an already-parsed time specification. The upstream speech pipeline
// produces it; this package only turns it into an absolute expiry instant.
type Spec struct {
	// Kind selects which fields below are meaningful.
	Kind Kind

	// Duration is the countdown length for interval specs.
	Duration time.Duration

	// Hour, Minute and Second give the clock time for clock specs.
	// Hour is 0-23 unless Meridiem is set, then 1-12.
	Hour   int
	Minute int
	Second int
	// Meridiem is "", "am" or "pm".
	Meridiem string
	// Day is "", "tomorrow" or a lowercase weekday name.
	Day string
}

// Interval builds a relative-duration spec.
func Interval(d time.Duration) Spec {
	return Spec{Kind: KindInterval, Duration: d}
}

// Clock builds an absolute time-of-day spec.
func Clock(hour, minute, second int, meridiem, day string) Spec {
	return Spec{
		Kind:     KindClock,
		Hour:     hour,
		Minute:   minute,
		Second:   second,
		Meridiem: strings.ToLower(strings.TrimSpace(meridiem)),
		Day:      strings.ToLower(strings.TrimSpace(day)),
	}
}

// weekdays maps spoken weekday names to time.Weekday.
//
//nolint:gochecknoglobals // Immutable lookup table.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Resolve computes the absolute expiry instant for the spec evaluated at now.
// The result is always strictly after now; anything else fails with
// timer.ErrInvalidTimeSpec.
func (s Spec) Resolve(now time.Time) (time.Time, error) {
	switch s.Kind {
	case KindInterval:
		return s.resolveInterval(now)
	case KindClock:
		return s.resolveClock(now)
	default:
		return time.Time{}, fmt.Errorf("kind %q: %w", s.Kind, timer.ErrInvalidTimeSpec)
	}
}

// resolveInterval adds the duration to now.
func (s Spec) resolveInterval(now time.Time) (time.Time, error) {
	if s.Duration <= 0 {
		return time.Time{}, fmt.Errorf("duration %s: %w", s.Duration, timer.ErrInvalidTimeSpec)
	}

	return now.Add(s.Duration), nil
}

// resolveClock builds today's instance of the clock time, applies meridiem
// and day qualifiers, and rolls forward when the instant already passed:
// a day with am/pm, half a day without.
func (s Spec) resolveClock(now time.Time) (time.Time, error) {
	hour := s.Hour

	switch s.Meridiem {
	case "":
	case MeridiemAM, MeridiemPM:
		if hour < 1 || hour > hoursPerHalfDay {
			return time.Time{}, fmt.Errorf("hour %d with meridiem: %w", hour, timer.ErrInvalidTimeSpec)
		}

		if s.Meridiem == MeridiemPM && hour < hoursPerHalfDay {
			hour += hoursPerHalfDay
		}

		if s.Meridiem == MeridiemAM && hour == hoursPerHalfDay {
			hour = 0
		}
	default:
		return time.Time{}, fmt.Errorf("meridiem %q: %w", s.Meridiem, timer.ErrInvalidTimeSpec)
	}

	if hour < 0 || hour > 23 || s.Minute < 0 || s.Minute > 59 || s.Second < 0 || s.Second > 59 {
		return time.Time{}, fmt.Errorf("clock %02d:%02d:%02d: %w", s.Hour, s.Minute, s.Second, timer.ErrInvalidTimeSpec)
	}

	expiry := time.Date(now.Year(), now.Month(), now.Day(), hour, s.Minute, s.Second, 0, now.Location())

	switch {
	case s.Day == "":
	case s.Day == DayTomorrow:
		expiry = expiry.AddDate(0, 0, 1)
	default:
		target, ok := weekdays[s.Day]
		if !ok {
			return time.Time{}, fmt.Errorf("day %q: %w", s.Day, timer.ErrInvalidTimeSpec)
		}

		daysAhead := (int(target) - int(expiry.Weekday()) + 7) % 7
		if daysAhead == 0 && !expiry.After(now) {
			daysAhead = 7
		}

		expiry = expiry.AddDate(0, 0, daysAhead)
	}

	if !expiry.After(now) {
		if s.Meridiem != "" {
			expiry = expiry.AddDate(0, 0, 1)
		} else {
			expiry = expiry.Add(hoursPerHalfDay * time.Hour)
		}
	}

	if !expiry.After(now) {
		return time.Time{}, fmt.Errorf("resolved %s is not in the future: %w", expiry, timer.ErrInvalidTimeSpec)
	}

	return expiry, nil
}
