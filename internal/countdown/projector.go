package countdown

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// Interval is a remaining-time breakdown for display widgets.
type Interval struct {
	// Days, Hours, Minutes and Seconds decompose the remaining duration.
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// Projection is the display-facing rendering of a timer's expiry. It is
// presentation only and must never be used to decide firing; the scheduler
// owns that.
type Projection struct {
	// Text is the human sentence: a day-and-clock phrase for clock timers,
	// a humanized remaining duration for duration timers.
	Text string
	// Day is the named day label ("Today", "Tomorrow", a weekday, or a date).
	Day string
	// Clock is the formatted clock time of the expiry.
	Clock string
	// Instant is the raw expiry for live-counting displays.
	Instant time.Time
	// Seconds is the remaining time in whole seconds, rounded up.
	Seconds int
	// Interval is the remaining time decomposed for countdown widgets.
	Interval Interval
	// Speak is the spoken-status sentence ("a Pasta timer with 5 minutes remaining").
	Speak string
}

// Projector renders expiry instants for humans.
type Projector struct {
	// h24 switches clock rendering between 12-hour and 24-hour formats.
	h24 bool
}

// NewProjector creates a projector; h24 enables 24-hour clock output.
func NewProjector(h24 bool) *Projector {
	return &Projector{h24: h24}
}

// Project builds the full display projection of t as of now.
func (p *Projector) Project(t *timer.Timer, now time.Time) Projection {
	remaining := int(math.Ceil(t.ExpiresAt.Sub(now).Seconds()))

	proj := Projection{
		Day:      NamedDay(t.ExpiresAt, now),
		Clock:    FormatClock(t.ExpiresAt, p.h24),
		Instant:  t.ExpiresAt,
		Seconds:  remaining,
		Interval: splitSeconds(remaining),
	}

	if t.FromDuration {
		proj.Text = HumanizeRemaining(t.ExpiresAt, now)
	} else {
		proj.Text = fmt.Sprintf("%s at %s", proj.Day, proj.Clock)
	}

	proj.Speak = speak(t, proj)

	return proj
}

// NamedDay labels the expiry day relative to now: "Today", "Tomorrow", the
// weekday name inside a week, otherwise a short date like "12 January".
func NamedDay(expiry, now time.Time) string {
	expiryDate := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, expiry.Location())
	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := int(math.Round(expiryDate.Sub(nowDate).Hours() / 24))

	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days < 7:
		return expiry.Weekday().String()
	default:
		return fmt.Sprintf("%d %s", expiry.Day(), expiry.Month())
	}
}

// FormatClock renders the clock time, keeping seconds only when non-zero.
func FormatClock(t time.Time, h24 bool) string {
	if h24 {
		if t.Second() != 0 {
			return t.Format("15:04:05")
		}

		return t.Format("15:04")
	}

	if t.Second() != 0 {
		return t.Format("3:04:05 PM")
	}

	return t.Format("3:04 PM")
}

// HumanizeRemaining renders the remaining duration as prose:
// "1 hour, 5 minutes and 20 seconds".
func HumanizeRemaining(expiry, now time.Time) string {
	remaining := int(math.Ceil(expiry.Sub(now).Seconds()))
	if remaining <= 0 {
		return "now"
	}

	parts := make([]string, 0, 4)
	split := splitSeconds(remaining)

	if split.Days > 0 {
		parts = append(parts, pluralize(split.Days, "day"))
	}

	if split.Hours > 0 {
		parts = append(parts, pluralize(split.Hours, "hour"))
	}

	if split.Minutes > 0 {
		parts = append(parts, pluralize(split.Minutes, "minute"))
	}

	if split.Seconds > 0 {
		parts = append(parts, pluralize(split.Seconds, "second"))
	}

	switch len(parts) {
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

// splitSeconds decomposes whole seconds into day/hour/minute/second fields.
func splitSeconds(total int) Interval {
	if total < 0 {
		total = 0
	}

	days, rest := total/(24*3600), total%(24*3600)
	hours, rest := rest/3600, rest%3600
	minutes, seconds := rest/60, rest%60

	return Interval{Days: days, Hours: hours, Minutes: minutes, Seconds: seconds}
}

// pluralize renders "1 hour" or "2 hours".
func pluralize(qty int, unit string) string {
	if qty == 1 {
		return fmt.Sprintf("1 %s", unit)
	}

	return fmt.Sprintf("%d %ss", qty, unit)
}

// speak builds the spoken status sentence for "how long is left" responses.
func speak(t *timer.Timer, proj Projection) string {
	label := string(t.Class)
	if label == "" {
		label = "timer"
	}

	if t.Name != "" {
		label = t.Name + " " + label
	} else if t.FromDuration && t.SpokenSentence != "" {
		label = t.SpokenSentence + " " + label
	}

	article := "a"
	if strings.ContainsRune("aeiou", rune(strings.ToLower(label)[0])) {
		article = "an"
	}

	if t.FromDuration {
		return fmt.Sprintf("%s %s with %s remaining", article, label, proj.Text)
	}

	return fmt.Sprintf("%s %s for %s", article, label, proj.Text)
}
