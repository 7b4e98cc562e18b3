package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// now is a fixed reference instant: Wednesday 2026-03-04 10:00:00 UTC.
var now = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

// TestNamedDay walks today, tomorrow, weekday and date labels.
func TestNamedDay(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Today", NamedDay(now.Add(7*time.Hour), now))
	require.Equal(t, "Tomorrow", NamedDay(now.Add(24*time.Hour), now))
	require.Equal(t, "Saturday", NamedDay(now.Add(3*24*time.Hour), now))
	require.Equal(t, "12 March", NamedDay(now.Add(8*24*time.Hour), now))

	// Late evening to early next morning is still Tomorrow, not Today.
	evening := time.Date(2026, time.March, 4, 23, 30, 0, 0, time.UTC)
	require.Equal(t, "Tomorrow", NamedDay(evening.Add(2*time.Hour), evening))
}

// TestFormatClock covers both formats with and without seconds.
func TestFormatClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.March, 4, 17, 30, 0, 0, time.UTC)
	require.Equal(t, "5:30 PM", FormatClock(at, false))
	require.Equal(t, "17:30", FormatClock(at, true))

	withSeconds := at.Add(15 * time.Second)
	require.Equal(t, "5:30:15 PM", FormatClock(withSeconds, false))
	require.Equal(t, "17:30:15", FormatClock(withSeconds, true))
}

// TestHumanizeRemaining checks prose joining and the zero case.
func TestHumanizeRemaining(t *testing.T) {
	t.Parallel()

	require.Equal(t, "5 minutes", HumanizeRemaining(now.Add(5*time.Minute), now))
	require.Equal(t, "1 hour and 1 second", HumanizeRemaining(now.Add(time.Hour+time.Second), now))
	require.Equal(t, "1 day, 2 hours and 30 minutes",
		HumanizeRemaining(now.Add(26*time.Hour+30*time.Minute), now))
	require.Equal(t, "now", HumanizeRemaining(now, now))
}

// TestProject_DurationTimer exposes the live instant and humanized text.
func TestProject_DurationTimer(t *testing.T) {
	t.Parallel()

	entry := &timer.Timer{
		ID:             "t-1",
		DeviceID:       "kitchen",
		Class:          timer.ClassTimer,
		SpokenSentence: "ten minutes",
		ExpiresAt:      now.Add(10 * time.Minute),
		FromDuration:   true,
	}

	proj := NewProjector(false).Project(entry, now)

	require.Equal(t, "10 minutes", proj.Text)
	require.Equal(t, entry.ExpiresAt, proj.Instant)
	require.Equal(t, 600, proj.Seconds)
	require.Equal(t, Interval{Minutes: 10}, proj.Interval)
	require.Equal(t, "a ten minutes timer with 10 minutes remaining", proj.Speak)
}

// TestProject_ClockTimer renders the static day-and-clock phrase.
func TestProject_ClockTimer(t *testing.T) {
	t.Parallel()

	entry := &timer.Timer{
		ID:        "t-2",
		DeviceID:  "bedroom",
		Class:     timer.ClassAlarm,
		Name:      "Wake up",
		ExpiresAt: time.Date(2026, time.March, 5, 7, 0, 0, 0, time.UTC),
	}

	proj := NewProjector(false).Project(entry, now)

	require.Equal(t, "Tomorrow at 7:00 AM", proj.Text)
	require.Equal(t, "Tomorrow", proj.Day)
	require.Equal(t, "7:00 AM", proj.Clock)
	require.Equal(t, "a Wake up alarm for Tomorrow at 7:00 AM", proj.Speak)
}

// TestProject_VowelArticle uses "an" before vowel-initial labels.
func TestProject_VowelArticle(t *testing.T) {
	t.Parallel()

	entry := &timer.Timer{
		ID:        "t-3",
		DeviceID:  "office",
		Class:     timer.ClassAlarm,
		ExpiresAt: now.Add(time.Hour),
	}

	proj := NewProjector(true).Project(entry, now)
	require.Equal(t, "an alarm for Today at 11:00", proj.Speak)
}
